package processors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// rateLookbackDays bounds how far back Rate searches for the last published
// fixing (weekends and bank holidays have none).
const rateLookbackDays = 7

// RateTable holds historical EUR reference rates keyed by currency and day.
type RateTable struct {
	rates map[string]map[string]float64
}

// NewRateTable returns an empty table. Rate on an empty table only knows EUR.
func NewRateTable() *RateTable {
	return &RateTable{rates: make(map[string]map[string]float64)}
}

// LoadRateTable reads an ECB reference-rate JSON file.
func LoadRateTable(filePath string) (*RateTable, error) {
	logger.L.Info("Loading historical exchange rates", "path", filePath)
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading historical exchange rate file '%s': %w", filePath, err)
	}
	defer f.Close()

	table, err := ReadRateTable(f)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling historical exchange rates from '%s': %w", filePath, err)
	}
	logger.L.Info("Historical exchange rates loaded successfully", "path", filePath, "currencies", len(table.rates))
	return table, nil
}

// ReadRateTable decodes ECB observations from r. Observations with a value
// that is not a positive number are skipped.
func ReadRateTable(r io.Reader) (*RateTable, error) {
	var raw models.ExchangeRate
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	table := NewRateTable()
	for _, obs := range raw.Root.Obs {
		value, err := strconv.ParseFloat(strings.TrimSpace(obs.ObsValue), 64)
		if err != nil || value <= 0 {
			logger.L.Debug("Skipping invalid exchange rate observation", "currency", obs.Ccy, "date", obs.TimePeriod, "value", obs.ObsValue)
			continue
		}
		table.Set(obs.Ccy, obs.TimePeriod, value)
	}
	return table, nil
}

// Set stores the rate of currency on date (any accepted date format).
func (t *RateTable) Set(currency, date string, rate float64) {
	ccy := strings.ToUpper(strings.TrimSpace(currency))
	byDay, ok := t.rates[ccy]
	if !ok {
		byDay = make(map[string]float64)
		t.rates[ccy] = byDay
	}
	byDay[utils.NormalizeDate(date)] = rate
}

// Rate returns units of currency per EUR on date, falling back to the most
// recent fixing of the preceding week.
func (t *RateTable) Rate(currency string, date time.Time) (float64, error) {
	ccy := strings.ToUpper(strings.TrimSpace(currency))
	if ccy == "" || ccy == models.BaseCurrency {
		return 1.0, nil
	}
	byDay, ok := t.rates[ccy]
	if !ok {
		return 0, fmt.Errorf("no exchange rates for %s", ccy)
	}
	day := utils.TruncateDay(date)
	for i := 0; i <= rateLookbackDays; i++ {
		if rate, ok := byDay[day.AddDate(0, 0, -i).Format(utils.ISODateFormat)]; ok {
			return rate, nil
		}
	}
	return 0, fmt.Errorf("exchange rate not found for %s on %s", ccy, day.Format(utils.ISODateFormat))
}

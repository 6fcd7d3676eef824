package models

// ExchangeRate represents the structure of the historical exchange rate JSON
// file (ECB reference rates, one observation per currency and day).
type ExchangeRate struct {
	Root struct {
		Obs []struct {
			TimePeriod string `json:"_TIME_PERIOD"`
			ObsValue   string `json:"_OBS_VALUE"`
			Ccy        string `json:"_CCY"`
		} `json:"Obs"`
	} `json:"root"`
}

package model

// DriverStatus summarizes the driver for the status endpoint.
type DriverStatus struct {
	Uptime    string  `json:"uptime"`
	Objects   int     `json:"objects"`
	NShort    uint16  `json:"nshort"` // wheel-resident callouts
	NLong     uint16  `json:"nlong"`  // heap-resident callouts
	NextDelay float64 `json:"next_delay_seconds"` // -1 when nothing is pending
	SwapRate1 uint32  `json:"swap_rate_1m"`
	SwapRate5 uint32  `json:"swap_rate_5m"`
}

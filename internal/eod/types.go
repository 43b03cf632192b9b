package eod

// aggRow represents aggregated grid activity for a symbol.
// Used to calculate EOD summary metrics across all trades for a symbol.
type aggRow struct {
	Symbol      string  // Trading symbol
	BuyQty      int     // Shares filled on rungs
	BuyValue    float64 // Value of fills (qty * price)
	SellQty     int     // Shares released at take-profit
	SellValue   float64 // Value of releases (qty * price)
	RealizedPnL float64 // Realised profit reported by the ledger on release
	Fills       int     // Number of rung fills
	Releases    int     // Number of rung releases
}

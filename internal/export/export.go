// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/storage/models"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures the export behavior
type Options struct {
	Format      Format
	StartTime   time.Time
	EndTime     time.Time
	TokenFilter string // filter by token address
	SideFilter  string // filter by side (buy/sell)
	OutputDir   string
}

// Summary holds aggregate statistics included in JSON exports.
type Summary struct {
	TotalTrades  int       `json:"total_trades"`
	BuyCount     int       `json:"buy_count"`
	SellCount    int       `json:"sell_count"`
	UniqueTokens int       `json:"unique_tokens"`
	TotalFeesWei string    `json:"total_fees_wei"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// TradeExporter writes persisted trade records to CSV or JSON files.
type TradeExporter struct {
	logger *zap.Logger
}

func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		logger: logger.Named("export"),
	}
}

// Export filters, sorts and writes the given trade records, returning the
// path of the file it produced.
func (te *TradeExporter) Export(trades []*models.Trade, options Options) (string, error) {
	filtered := te.filterTrades(trades, options)

	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CompletedAt.Before(filtered[j].CompletedAt)
	})

	filename := te.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = te.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = te.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}

	if err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// filterTrades applies filters to the trade list
func (te *TradeExporter) filterTrades(trades []*models.Trade, options Options) []*models.Trade {
	var filtered []*models.Trade

	for _, trade := range trades {
		// Time filter
		if !options.StartTime.IsZero() && trade.CompletedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && trade.CompletedAt.After(options.EndTime) {
			continue
		}

		// Token filter
		if options.TokenFilter != "" && trade.Token != options.TokenFilter {
			continue
		}

		// Side filter
		if options.SideFilter != "" && trade.Side != options.SideFilter {
			continue
		}

		filtered = append(filtered, trade)
	}

	return filtered
}

// generateFilename creates a filename based on export options
func (te *TradeExporter) generateFilename(options Options) string {
	timestamp := time.Now().Format("20060102_150405")

	var prefix string
	if options.SideFilter != "" {
		prefix = fmt.Sprintf("trades_%s", options.SideFilter)
	} else {
		prefix = "trades_all"
	}

	if options.TokenFilter != "" && len(options.TokenFilter) >= 10 {
		prefix += "_" + options.TokenFilter[2:10]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func csvHeaders() []string {
	return []string{
		"completed_at", "trade_id", "tx_hash", "token", "trader", "side",
		"amount_in", "amount_out", "fee_paid", "block_number", "gas_used",
		"realized_slippage_bps",
	}
}

func csvRecord(trade *models.Trade) []string {
	return []string{
		trade.CompletedAt.Format(time.RFC3339),
		trade.TradeID,
		trade.TxHash,
		trade.Token,
		trade.Trader,
		trade.Side,
		trade.AmountIn,
		trade.AmountOut,
		trade.FeePaid,
		strconv.FormatUint(trade.BlockNumber, 10),
		strconv.FormatUint(trade.GasUsed, 10),
		strconv.FormatInt(trade.RealizedSlippageBps, 10),
	}
}

func (te *TradeExporter) exportToCSV(trades []*models.Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, trade := range trades {
		if err := writer.Write(csvRecord(trade)); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}

	return nil
}

func (te *TradeExporter) exportToJSON(trades []*models.Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time       `json:"export_time"`
		TradeCount int             `json:"trade_count"`
		Trades     []*models.Trade `json:"trades"`
		Summary    Summary         `json:"summary"`
	}{
		ExportTime: time.Now(),
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    te.calculateSummary(trades),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// calculateSummary expects trades sorted by completion time.
func (te *TradeExporter) calculateSummary(trades []*models.Trade) Summary {
	summary := Summary{
		TotalTrades:  len(trades),
		TotalFeesWei: "0",
	}

	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].CompletedAt
	summary.EndDate = trades[len(trades)-1].CompletedAt

	tokenSet := make(map[string]bool)
	totalFees := new(big.Int)

	for _, trade := range trades {
		tokenSet[trade.Token] = true

		switch trade.Side {
		case "buy":
			summary.BuyCount++
		case "sell":
			summary.SellCount++
		}

		if fee, ok := new(big.Int).SetString(trade.FeePaid, 10); ok {
			totalFees.Add(totalFees, fee)
		}
	}

	summary.UniqueTokens = len(tokenSet)
	summary.TotalFeesWei = totalFees.String()

	return summary
}

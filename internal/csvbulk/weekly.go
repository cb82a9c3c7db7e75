package csvbulk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WeeklyMode selects how a week's candle is derived from its daily
// constituents when an exchange's archive only publishes daily granularity.
type WeeklyMode int

const (
	// WeeklyMeanOHLC derives each weekly OHLC field as the arithmetic mean of
	// the corresponding daily fields across the week. This is the original
	// behavior and remains the default.
	WeeklyMeanOHLC WeeklyMode = iota
	// WeeklyExtremesOHLC derives the week's open from the first day's open,
	// close from the last day's close, and high/low from the week's true
	// extremes. This is more representative of an actual weekly candle and
	// is an explicit opt-in.
	WeeklyExtremesOHLC
)

// EmulateWeeklyRow folds dailyRows (assumed to all fall within the same
// Monday-anchored week, in chronological order) into a single synthetic
// weekly row per mode.
func EmulateWeeklyRow(dailyRows []DailyRow, weekMonday int64, mode WeeklyMode) (DailyRow, error) {
	if len(dailyRows) == 0 {
		return DailyRow{}, fmt.Errorf("csvbulk: cannot emulate a weekly row from zero daily rows")
	}

	switch mode {
	case WeeklyExtremesOHLC:
		return emulateWeeklyExtremes(dailyRows, weekMonday)
	default:
		return emulateWeeklyMean(dailyRows, weekMonday)
	}
}

func emulateWeeklyMean(dailyRows []DailyRow, weekMonday int64) (DailyRow, error) {
	var openSum, highSum, lowSum, closeSum, volumeSum decimal.Decimal
	var trades int64

	for _, row := range dailyRows {
		open, err := decimal.NewFromString(row.Open)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse open: %w", err)
		}
		high, err := decimal.NewFromString(row.High)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse high: %w", err)
		}
		low, err := decimal.NewFromString(row.Low)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse low: %w", err)
		}
		closeP, err := decimal.NewFromString(row.Close)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse close: %w", err)
		}
		volume, err := decimal.NewFromString(row.Volume)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse volume: %w", err)
		}

		openSum = openSum.Add(open)
		highSum = highSum.Add(high)
		lowSum = lowSum.Add(low)
		closeSum = closeSum.Add(closeP)
		volumeSum = volumeSum.Add(volume)
		trades += row.Trades
	}

	n := decimal.NewFromInt(int64(len(dailyRows)))
	return DailyRow{
		Epoch:  weekMonday,
		Open:   openSum.Div(n).String(),
		High:   highSum.Div(n).String(),
		Low:    lowSum.Div(n).String(),
		Close:  closeSum.Div(n).String(),
		Volume: volumeSum.String(),
		Trades: trades,
	}, nil
}

func emulateWeeklyExtremes(dailyRows []DailyRow, weekMonday int64) (DailyRow, error) {
	high, err := decimal.NewFromString(dailyRows[0].High)
	if err != nil {
		return DailyRow{}, fmt.Errorf("csvbulk: parse high: %w", err)
	}
	low, err := decimal.NewFromString(dailyRows[0].Low)
	if err != nil {
		return DailyRow{}, fmt.Errorf("csvbulk: parse low: %w", err)
	}
	var volumeSum decimal.Decimal
	var trades int64

	for _, row := range dailyRows {
		rowHigh, err := decimal.NewFromString(row.High)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse high: %w", err)
		}
		rowLow, err := decimal.NewFromString(row.Low)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse low: %w", err)
		}
		rowVolume, err := decimal.NewFromString(row.Volume)
		if err != nil {
			return DailyRow{}, fmt.Errorf("csvbulk: parse volume: %w", err)
		}
		if rowHigh.GreaterThan(high) {
			high = rowHigh
		}
		if rowLow.LessThan(low) {
			low = rowLow
		}
		volumeSum = volumeSum.Add(rowVolume)
		trades += row.Trades
	}

	return DailyRow{
		Epoch:  weekMonday,
		Open:   dailyRows[0].Open,
		High:   high.String(),
		Low:    low.String(),
		Close:  dailyRows[len(dailyRows)-1].Close,
		Volume: volumeSum.String(),
		Trades: trades,
	}, nil
}

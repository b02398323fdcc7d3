package analyze

import (
	"fmt"
	"strings"

	"github.com/sawpanic/chartpulse/internal/indicators"
)

const systemPrompt = "You are a professional financial technical analyst, an expert in Al Brooks' " +
	"Price Action theory, Bollinger Bands, Volume Analysis, and the Stochastic RSI indicator. " +
	"Your analytical style is decisive and professional, capable of integrating signals from " +
	"different tools into a coherent analytical narrative and providing clear, actionable " +
	"trading strategies."

const promptInstructions = `Based on the stock ticker and the indicator readings provided, you must strictly follow the specified analytical tools and report template structure below to generate a technical analysis report. NOTE: You will not be provided with a chart image; your analysis must be grounded in the indicator readings below and your general knowledge of the asset's recent price action.

Mandatory Analytical Tools:
Bollinger Bands: Use standard parameters (a 20-period Simple Moving Average as the middle band, with the upper and lower bands at +/- 2 standard deviations). Analyze the relationship between the price and the upper, middle, and lower bands; changes in the Bollinger Bandwidth (contraction/Squeeze or expansion); and signals when the price touches or breaks through the bands.
Volume: Analyze changes in volume in conjunction with price movements to determine the health of the trend (e.g., high-volume breakout, low-volume pullback, price-volume divergence).
Stochastic RSI (14): Use to identify overbought/oversold conditions and potential momentum shift signals (bullish/bearish crossovers, divergence).
Al Brooks Price Action Theory: Identify key Trend Bars, Signal Bars, Micro Channels, Pullbacks, Breakout Patterns, and major market structures (like Trend Channels or Trading Ranges). Pay special attention to the behavior of candlesticks at key Bollinger Band levels.
Chart Patterns: Identify key support levels, resistance levels, trendlines, or simple patterns (like double tops/bottoms, flags) based on price action, and use the Bollinger Band boundaries to confirm these structures.

Report Template Structure & Writing Instructions:
IMPORTANT: Your entire response must be written in flowing, holistic paragraphs. Do NOT use bullet points, numbered lists, or any list-like formatting. Each section of the report should be a well-integrated narrative. Your analysis should naturally progress through the following four themes, each in its own paragraph.

First, provide an overall assessment of the trend and market condition. This should include a definitive judgment on the market's direction, a description of recent critical price action, confirmation with volume analysis, and a brief mention of the Stochastic RSI status.

Second, analyze the price action and chart structure in detail. Apply Al Brooks' theory to identify the dominant market structure, pinpoint key support and resistance levels, and provide one or two potential upside or downside price target zones.

Third, offer a comprehensive interpretation of the indicators. Synthesize the signals from Bollinger Bands, volume, and Stochastic RSI into a coherent chain of evidence, elaborating on the specific signals each is providing.

Fourth, conclude with a clear trading strategy and risk management plan. State the core operational bias, provide actionable entry signals, define clear price targets and stop-loss levels, and mention an alternative scenario or conditions for adjusting the position.

Begin Generation
Now, please generate an analysis report for the following target:`

// userPrompt renders the analysis request with the snapshot's values embedded
// verbatim, so a cached response is pinned to the exact readings it saw.
func userPrompt(ticker string, snap indicators.Snapshot) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	fmt.Fprintf(&b, "\n\nStock Ticker: %s\n", ticker)
	b.WriteString("\nCurrent Indicator Readings:\n")
	fmt.Fprintf(&b, "Latest Close: %s\n", indicators.Format(snap.LatestClose, 4))
	fmt.Fprintf(&b, "Period High: %s\n", indicators.Format(snap.PeriodHigh, 4))
	fmt.Fprintf(&b, "Period Low: %s\n", indicators.Format(snap.PeriodLow, 4))
	fmt.Fprintf(&b, "Bollinger Upper: %s\n", indicators.Format(snap.BBUpper, 2))
	fmt.Fprintf(&b, "Bollinger Middle: %s\n", indicators.Format(snap.BBMiddle, 2))
	fmt.Fprintf(&b, "Bollinger Lower: %s\n", indicators.Format(snap.BBLower, 2))
	fmt.Fprintf(&b, "Stochastic RSI K: %s\n", indicators.Format(snap.StochK, 0))
	fmt.Fprintf(&b, "Stochastic RSI D: %s\n", indicators.Format(snap.StochD, 0))
	return b.String()
}

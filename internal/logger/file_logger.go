package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger represents a file logger for trade management activities
type Logger struct {
	symbol  string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// NewLogger creates a new file logger for the specified symbol
func NewLogger(symbol string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_exits_%s.log", symbol, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Timestamps are added per entry, so no prefix here
	logger := log.New(file, "", 0)

	l := &Logger{
		symbol:  symbol,
		logFile: file,
		logger:  logger,
		logDir:  logDir,
	}

	l.writeSessionHeader()

	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 STAGED EXIT SESSION STARTED
================================================================================
Symbol: %s
Started: %s
Log File: %s_exits_%s.log
================================================================================
`, l.symbol, time.Now().Format("2006-01-02 15:04:05"),
		l.symbol, time.Now().Format("2006-01-02"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logEntry := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)

	l.logger.Println(logEntry)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogTradeStatus logs the periodic trade status block
func (l *Logger) LogTradeStatus(currentPrice float64, state string, remaining, original int64, nextTarget, stopPrice float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	statusLog := fmt.Sprintf(`
[%s] [STATUS] ==================== TRADE STATUS ====================
💰 Current Price: $%.2f | State: %s
📦 Remaining: %d / %d shares
🛡️ Active Stop: $%.2f`,
		timestamp, currentPrice, state, remaining, original, stopPrice)

	if nextTarget > 0 {
		statusLog += fmt.Sprintf(`
🎯 Next Target: $%.2f`, nextTarget)
	} else {
		statusLog += "\n🎯 Next Target: none (final stage done or stopped)"
	}

	statusLog += "\n=========================================================="

	l.logger.Println(statusLog)
}

// LogStageFill logs a completed ladder stage exit
func (l *Logger) LogStageFill(stage int, orderID string, qty int64, avgPrice float64, remaining int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	tradeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== STAGE %d FILLED ====================
✅ Order ID: %s
📦 Quantity: %d %s
💰 Avg Price: $%.2f
📊 Remaining Position: %d shares
=============================================================`,
		timestamp, stage, orderID, qty, l.symbol, avgPrice, remaining)

	l.logger.Println(tradeLog)
}

// LogStopMove logs a stop ratchet after a stage fill
func (l *Logger) LogStopMove(oldStop, newStop float64, qty int64) {
	l.Trade("🛡️ Stop moved: $%.2f -> $%.2f (covering %d shares)", oldStop, newStop, qty)
}

// LogReconciliation logs a position reconciliation correction
func (l *Logger) LogReconciliation(expected, actual int64) {
	l.Warning("⚖️ Position mismatch: tracked %d shares, broker reports %d - adopting broker value", expected, actual)
}

// LogSessionOutcome logs the final result of a trade session
func (l *Logger) LogSessionOutcome(exitReason string, realizedPnL, rMultiple float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	outcomeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== TRADE CLOSED ====================
🚪 Exit Reason: %s
💹 Realized P&L: $%.2f
📊 R-Multiple: %.2f
=============================================================`,
		timestamp, exitReason, realizedPnL, rMultiple)

	l.logger.Println(outcomeLog)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	fullMessage := fmt.Sprintf(context+": "+message, args...)
	l.Warning("%s", fullMessage)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 STAGED EXIT SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_exits_%s.log", l.symbol, timestamp)
	return filepath.Join(l.logDir, filename)
}

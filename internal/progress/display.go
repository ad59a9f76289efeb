package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display handles the periodic progress display
type Display struct {
	tracker   *Tracker
	interval  time.Duration
	stopCh    chan struct{}
	lastLines int
}

// NewDisplay creates a new progress display
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the progress display
func (d *Display) Stop() {
	close(d.stopCh)
}

func (d *Display) displayLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.updateDisplay()
		case <-d.stopCh:
			d.finalDisplay()
			return
		}
	}
}

func (d *Display) updateDisplay() {
	status := d.tracker.GetStatus()

	lines := d.generateDisplay(status)

	d.clearLines()
	fmt.Print(strings.Join(lines, "\n"))
	d.lastLines = len(lines)
}

// finalDisplay shows the final summary
func (d *Display) finalDisplay() {
	d.clearLines()
	status := d.tracker.GetStatus()
	lines := d.generateFinalDisplay(status)
	fmt.Println(strings.Join(lines, "\n"))
}

// clearLines separates the new output from the previous block. ANSI cursor
// moves are unreliable on Windows consoles, so just print a newline.
func (d *Display) clearLines() {
	if d.lastLines > 0 {
		fmt.Print("\n")
	}
}

func (d *Display) generateDisplay(status Status) []string {
	lines := make([]string, 0)

	lines = append(lines, "")
	lines = append(lines, "Upload progress")
	lines = append(lines, "="+strings.Repeat("=", 50))

	objectProgress := d.tracker.GetProgressPercent()
	lines = append(lines, fmt.Sprintf("Objects: %d/%d (%.1f%%)",
		status.ProcessedObjects, status.TotalObjects, objectProgress))
	lines = append(lines, fmt.Sprintf("    %s", d.generateProgressBar(objectProgress, 40)))

	bytesProgress := d.tracker.GetBytesProgressPercent()
	lines = append(lines, fmt.Sprintf("Data: %s/%s (%.1f%%)",
		FormatBytes(status.ProcessedBytes), FormatBytes(status.TotalBytes), bytesProgress))
	lines = append(lines, fmt.Sprintf("    %s", d.generateProgressBar(bytesProgress, 40)))

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  uploaded: %d  failed: %d  skipped: %d",
		status.SuccessObjects, status.FailedObjects, status.SkippedObjects))

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  current speed: %s", FormatSpeed(status.CurrentSpeed)))
	lines = append(lines, fmt.Sprintf("  average speed: %s", FormatSpeed(status.AverageSpeed)))

	elapsed := time.Since(status.StartTime)
	lines = append(lines, fmt.Sprintf("  elapsed: %s  remaining: %s",
		FormatDuration(elapsed), FormatDuration(status.ETA)))

	if status.ETA > 0 {
		estimatedCompletion := time.Now().Add(status.ETA)
		lines = append(lines, fmt.Sprintf("  estimated completion: %s", estimatedCompletion.Format("15:04:05")))
	}

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("last update: %s", status.LastUpdateTime.Format("15:04:05")))
	lines = append(lines, "")

	return lines
}

func (d *Display) generateFinalDisplay(status Status) []string {
	lines := make([]string, 0)

	elapsed := time.Since(status.StartTime)

	lines = append(lines, "")
	lines = append(lines, "Upload finished")
	lines = append(lines, "="+strings.Repeat("=", 50))

	lines = append(lines, fmt.Sprintf("objects processed: %d", status.ProcessedObjects))
	lines = append(lines, fmt.Sprintf("data transferred:  %s", FormatBytes(status.ProcessedBytes)))
	lines = append(lines, fmt.Sprintf("uploaded: %d  failed: %d  skipped: %d",
		status.SuccessObjects, status.FailedObjects, status.SkippedObjects))
	lines = append(lines, fmt.Sprintf("total time: %s", FormatDuration(elapsed)))
	lines = append(lines, fmt.Sprintf("average speed: %s", FormatSpeed(status.AverageSpeed)))
	lines = append(lines, "")

	return lines
}

func (d *Display) generateProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	return fmt.Sprintf("[%s] %.1f%%", bar, percent)
}

// IsTerminalSupported checks if the terminal supports progress display
func IsTerminalSupported() bool {
	if fileInfo, _ := os.Stdout.Stat(); (fileInfo.Mode() & os.ModeCharDevice) == 0 {
		return false
	}

	return true
}

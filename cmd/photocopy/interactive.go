// photocopy: template-driven media organizer with crash-safe resume and rollback.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sqweek/dialog"

	"photocopy/internal/catalog"
	"photocopy/internal/txlog"
)

// printBanner prints a colored ASCII art banner.
func printBanner() {
	banner := `

	██████╗ ██╗  ██╗ ██████╗ ████████╗ ██████╗  ██████╗ ██████╗ ██████╗ ██╗   ██╗
	██╔══██╗██║  ██║██╔═══██╗╚══██╔══╝██╔═══██╗██╔════╝██╔═══██╗██╔══██╗╚██╗ ██╔╝
	██████╔╝███████║██║   ██║   ██║   ██║   ██║██║     ██║   ██║██████╔╝ ╚████╔╝
	██╔═══╝ ██╔══██║██║   ██║   ██║   ██║   ██║██║     ██║   ██║██╔═══╝   ╚██╔╝
	██║     ██║  ██║╚██████╔╝   ██║   ╚██████╔╝╚██████╗╚██████╔╝██║        ██║
	╚═╝     ╚═╝  ╚═╝ ╚═════╝    ╚═╝    ╚═════╝  ╚═════╝ ╚═════╝ ╚═╝        ╚═╝

`
	color.New(color.FgBlack, color.Bold).Println(banner)
}

// isGUIAvailable checks if a GUI toolkit is available without showing errors.
func isGUIAvailable() bool {
	defer func() {
		recover()
	}()
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	return true
}

// guiDirectoryPicker opens a native directory selection dialog.
func guiDirectoryPicker(title string) (string, error) {
	defer func() {
		recover()
	}()
	directory, err := dialog.Directory().Title(title).Browse()
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(directory); err != nil || !info.IsDir() {
		return "", fmt.Errorf("not a valid directory")
	}
	return directory, nil
}

// pickDirectory asks via the native dialog when a GUI is available and
// falls back to a terminal prompt otherwise.
func pickDirectory(label string) string {
	if isGUIAvailable() {
		if dir, err := guiDirectoryPicker(label); err == nil && dir != "" {
			fmt.Printf("%s: %s\n", label, dir)
			return dir
		}
	}
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			info, err := os.Stat(input)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("not a valid directory")
			}
			return nil
		},
	}
	dir, err := prompt.Run()
	if err == promptui.ErrInterrupt {
		color.New(color.FgRed, color.Bold).Println("\nInterrupted during prompt. Exiting cleanly.")
		os.Exit(130)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] %s prompt failed: %v\n", label, err)
		os.Exit(1)
	}
	return dir
}

// interactivePrompt fills the run flags by asking the user.
func interactivePrompt() {
	printBanner()

	flagSrc = pickDirectory("Source directory")
	destRoot := pickDirectory("Destination directory")

	// Show when this destination last received a run.
	dbPath := filepath.Join(destRoot, "photocopy.db")
	if info, err := os.Stat(dbPath); err == nil && !info.IsDir() {
		if cat, err := catalog.Open(dbPath); err == nil {
			lastRun, err := cat.LastRunTime()
			cat.Close()
			if err == nil && !lastRun.IsZero() {
				color.New(color.FgGreen).Printf("Last run was %s (%s)\n", agoString(lastRun), lastRun.Format(time.RFC3339))
			}
		}
	}

	layoutPrompt := promptui.Select{
		Label: "Folder layout",
		Items: []string{
			"{year}/{month}/{name}{ext}",
			"{year}/{month}/{day}/{name}{ext}",
			"{year}/{country}/{city?min=10|country}/{name}{ext}",
			"{album}/{year}/{name}{ext}",
		},
	}
	_, layout, err := layoutPrompt.Run()
	if err == promptui.ErrInterrupt {
		color.New(color.FgRed, color.Bold).Println("\nInterrupted during prompt. Exiting cleanly.")
		os.Exit(130)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] Layout prompt failed: %v\n", err)
		os.Exit(1)
	}
	flagDest = filepath.ToSlash(destRoot) + "/" + layout

	modePrompt := promptui.Select{
		Label: "Copy files, or move them out of the source?",
		Items: []string{"Copy", "Move"},
	}
	_, mode, err := modePrompt.Run()
	if err == promptui.ErrInterrupt {
		color.New(color.FgRed, color.Bold).Println("\nInterrupted during prompt. Exiting cleanly.")
		os.Exit(130)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] Mode prompt failed: %v\n", err)
		os.Exit(1)
	}
	flagMode = mode
}

func agoString(t time.Time) string {
	delta := time.Since(t)
	days := int(delta.Hours()) / 24
	hours := int(delta.Hours()) % 24
	minutes := int(delta.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%d days, %d hours, %d minutes ago", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%d hours, %d minutes ago", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%d minutes ago", minutes)
	default:
		return "just now"
	}
}

// listTransactionsFor prints the known transaction logs for a
// destination root.
func listTransactionsFor(dir string) {
	infos := txlog.ListTransactionLogs(dir)
	if len(infos) == 0 {
		fmt.Printf("No transaction logs found in %s\n", dir)
		return
	}
	for _, info := range infos {
		statusColor := color.New(color.FgGreen)
		switch info.Status {
		case txlog.StatusFailed:
			statusColor = color.New(color.FgRed)
		case txlog.StatusInProgress:
			statusColor = color.New(color.FgYellow)
		case txlog.StatusRolledBack:
			statusColor = color.New(color.FgCyan)
		}
		fmt.Printf("%s  %s  %4d ops  ", info.TransactionID, info.StartTime.Format("2006-01-02 15:04:05"), info.OperationCount)
		statusColor.Printf("%s\n", info.Status)
	}
}

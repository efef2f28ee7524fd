package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const launchAgentLabel = "io.github.jandubois.healthmon"

var launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Executable}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
        <string>--log-level</string>
        <string>{{.LogLevel}}</string>
    </array>
{{- if .AuthToken}}
    <key>EnvironmentVariables</key>
    <dict>
        <key>AUTH_TOKEN</key>
        <string>{{.AuthToken}}</string>
    </dict>
{{- end}}
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogDir}}/healthmon.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/healthmon.log</string>
</dict>
</plist>
`

type plistData struct {
	Label      string
	Executable string
	ConfigPath string
	LogLevel   string
	AuthToken  string
	LogDir     string
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install healthmon as a launchd service (macOS)",
	Long: `Install "healthmon serve" as a macOS LaunchAgent that starts on login
and runs continuously in the background.

The service will be installed to ~/Library/LaunchAgents and will restart
automatically if it crashes.`,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the healthmon service (macOS)",
	Long:  `Stop and remove the healthmon LaunchAgent.`,
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)

	installCmd.Flags().String("auth-token", "", "Token for /health/check (or AUTH_TOKEN env var)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("install command is only supported on macOS")
	}

	// Fail early on a config the service could not start with
	configPath, err := filepath.Abs(getConfigPath(cmd))
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := loadConfig(cmd); err != nil {
		return err
	}

	logLevel, _ := cmd.Flags().GetString("log-level")
	authToken, _ := cmd.Flags().GetString("auth-token")
	if authToken == "" {
		authToken = os.Getenv("AUTH_TOKEN")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	paths, err := userLaunchAgentPaths()
	if err != nil {
		return err
	}
	for _, dir := range []string{filepath.Dir(paths.plist), paths.logDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// A loaded agent keeps running the old plist until it is unloaded.
	if _, err := os.Stat(paths.plist); err == nil {
		_ = exec.Command("launchctl", "unload", paths.plist).Run()
	}

	f, err := os.OpenFile(paths.plist, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create plist: %w", err)
	}
	defer f.Close()

	err = writePlist(f, plistData{
		Label:      launchAgentLabel,
		Executable: executable,
		ConfigPath: configPath,
		LogLevel:   logLevel,
		AuthToken:  authToken,
		LogDir:     paths.logDir,
	})
	if err != nil {
		return err
	}

	if err := exec.Command("launchctl", "load", paths.plist).Run(); err != nil {
		return fmt.Errorf("launchctl load: %w", err)
	}

	slog.Info("service installed",
		"label", launchAgentLabel,
		"plist", paths.plist,
		"log", filepath.Join(paths.logDir, "healthmon.log"),
	)
	return nil
}

type launchAgentPaths struct {
	plist  string
	logDir string
}

func launchAgentPathsIn(home string) launchAgentPaths {
	return launchAgentPaths{
		plist:  filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist"),
		logDir: filepath.Join(home, "Library", "Logs", "healthmon"),
	}
}

func userLaunchAgentPaths() (launchAgentPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return launchAgentPaths{}, fmt.Errorf("find home directory: %w", err)
	}
	return launchAgentPathsIn(home), nil
}

func writePlist(w io.Writer, data plistData) error {
	tmpl, err := template.New("plist").Parse(launchAgentPlist)
	if err != nil {
		return fmt.Errorf("parse plist template: %w", err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("uninstall command is only supported on macOS")
	}

	paths, err := userLaunchAgentPaths()
	if err != nil {
		return err
	}
	if _, err := os.Stat(paths.plist); os.IsNotExist(err) {
		return fmt.Errorf("service is not installed")
	}

	if err := exec.Command("launchctl", "unload", paths.plist).Run(); err != nil {
		slog.Warn("launchctl unload failed", "plist", paths.plist, "error", err)
	}
	if err := os.Remove(paths.plist); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}

	slog.Info("service uninstalled", "label", launchAgentLabel)
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/d4rkfella/vaulted/internal/backup"
	"github.com/d4rkfella/vaulted/internal/config"
)

var flagPattern = regexp.MustCompile(`--[a-z0-9-]+`)

func validateConfig(p config.Provider, reqs map[string]bool) *ValidationError {
	err := &ValidationError{
		Sections: make(map[string]*ValidationSection),
		ExitCode: ExitConfig,
	}

	conn := &ValidationSection{}
	if p.GetString(config.KeyAddr) == "" && p.GetString(config.KeyHost) == "" {
		conn.Issues = append(conn.Issues, "Missing Vault address (--address)")
	}
	addSection(err, "Vault Connection", conn)

	if reqs[needsToken] {
		auth := &ValidationSection{}
		if p.GetString(config.KeyToken) == "" && !snapshotExists(p.GetString(config.KeyBackupDir)) {
			auth.Issues = append(auth.Issues, "Missing Vault token (--token)")
			auth.Solutions = []string{"Run 'vaulted init' first, or 'vaulted restore' to load a saved root token."}
		}
		addSection(err, "Vault Authentication", auth)
	}

	s3 := &ValidationSection{}
	if reqs[needsS3] && p.GetString(config.KeyS3Bucket) == "" {
		s3.Issues = append(s3.Issues, "Missing S3 bucket name (--s3-bucket)")
	}
	access, secret := p.GetString(config.KeyS3AccessKey), p.GetString(config.KeyS3SecretKey)
	if (access == "") != (secret == "") {
		s3.Issues = append(s3.Issues, "Both S3 keys must be provided if one is set (--s3-access-key, --s3-secret-key)")
	}
	addSection(err, "S3 Storage", s3)

	notifications := &ValidationSection{}
	if (p.GetString(config.KeyPushoverAPIKey) == "") != (p.GetString(config.KeyPushoverUserKey) == "") {
		notifications.Issues = append(notifications.Issues, "Both Pushover keys must be provided if one is set (--pushover-api-key, --pushover-user-key)")
	}
	addSection(err, "Notifications", notifications)

	if len(err.Sections) > 0 {
		return err
	}
	return nil
}

// addSection fills in the standard fixes for the flags named in the
// section's issues and records it when it has any.
func addSection(err *ValidationError, name string, section *ValidationSection) {
	if len(section.Issues) == 0 {
		return
	}
	var flagNames []string
	for _, issue := range section.Issues {
		flagNames = append(flagNames, flagPattern.FindAllString(issue, -1)...)
	}
	solutions, advice := generateStandardFixes(flagNames)
	section.Solutions = append(solutions, section.Solutions...)
	section.SettingAdvice = advice
	err.Sections[name] = section
}

func generateStandardFixes(flagNames []string) (solutions []string, settingAdvice []string) {
	solutions = []string{"Provide the required value(s)"}

	var flagsWithValues, envVars []string
	for _, flag := range flagNames {
		flagsWithValues = append(flagsWithValues, flag+" VALUE")
		envVars = append(envVars, envName(flag)+"=VALUE")
	}

	settingAdvice = []string{
		fmt.Sprintf("1. Via flags: %s", strings.Join(flagsWithValues, " ")),
		fmt.Sprintf("2. Via environment variables: %s", strings.Join(envVars, " ")),
		"3. Via config file (--config vaulted.yaml)",
	}
	return
}

func envName(flag string) string {
	name := strings.TrimPrefix(flag, "--")
	if key, ok := flagKeys[name]; ok {
		return strings.ToUpper(key)
	}
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func snapshotExists(dir string) bool {
	_, err := os.Stat(backup.Path(dir))
	return err == nil
}

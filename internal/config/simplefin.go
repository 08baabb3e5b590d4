package config

import (
	"os"

	"github.com/spf13/viper"
)

// DefaultSimpleFINStateFile holds the claimed access URL.
const DefaultSimpleFINStateFile = "~/.local/share/savings/simplefin_auth.json"

// SimpleFINConfig holds SimpleFIN Bridge credentials. An AccessURL is used
// directly; otherwise the access URL saved in StateFile is used, claiming
// Token first if nothing is saved yet.
type SimpleFINConfig struct {
	AccessURL string
	Token     string
	StateFile string
}

// LoadSimpleFINConfig reads the simplefin.* keys, then SIMPLEFIN_*
// environment variables.
func LoadSimpleFINConfig() *SimpleFINConfig {
	return &SimpleFINConfig{
		AccessURL: firstNonEmpty(viper.GetString("simplefin.access_url"), os.Getenv("SIMPLEFIN_ACCESS_URL")),
		Token:     firstNonEmpty(viper.GetString("simplefin.token"), os.Getenv("SIMPLEFIN_TOKEN")),
		StateFile: ExpandPath(firstNonEmpty(viper.GetString("simplefin.state_file"), DefaultSimpleFINStateFile)),
	}
}

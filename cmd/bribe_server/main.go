package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/TEENet-io/bribe-go/cmd"
	"github.com/TEENet-io/bribe-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "BRIBE_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Bribe server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Bribe server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	if err := logconfig.ConfigLogger(viper.GetString("LOG_LEVEL")); err != nil {
		fmt.Printf("Error configuring logger: %s\n", err)
		return
	}

	bsc := PrepareBribeServerConfig()

	fmt.Println("Starting bribe server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartBribeServerAndWait(bsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareBribeServerConfig reads configuration variables and returns a BribeServerConfig.
func PrepareBribeServerConfig() *cmd.BribeServerConfig {
	viper.SetDefault("BLOCK_HASH_SOURCE", cmd.SOURCE_RPC)
	viper.SetDefault("CHECK_POW", true)

	return &cmd.BribeServerConfig{
		// state side
		DbFilePath:  viper.GetString("DB_FILE_PATH"),
		UnlockDelay: viper.GetDuration("UNLOCK_DELAY"),
		// btc side
		BlockHashSource:    viper.GetString("BLOCK_HASH_SOURCE"),
		BtcRpcServer:       viper.GetString("BTC_RPC_SERVER"),
		BtcRpcPort:         viper.GetString("BTC_RPC_PORT"),
		BtcRpcUsername:     viper.GetString("BTC_RPC_USERNAME"),
		BtcRpcPwd:          viper.GetString("BTC_RPC_PWD"),
		EsploraUrl:         viper.GetString("ESPLORA_URL"),
		BlockHashCacheSize: viper.GetInt("BLOCK_HASH_CACHE_SIZE"),
		BlockHashDbPath:    viper.GetString("BLOCK_HASH_DB_PATH"),
		BtcChainConfig:     cmd.ChainParams(viper.GetString("BTC_CHAIN_CONFIG")),
		CheckPoW:           viper.GetBool("CHECK_POW"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}

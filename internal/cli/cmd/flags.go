package cmd

import (
	"time"

	humane "github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFileName string

func addServerFlags(cmd *cobra.Command) {
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	cmd.PersistentFlags().StringVarP(&configFileName, "config", "c", "", "Name of the config file")

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	viper.SetDefault("debug", false)
	if err := viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key"))
	}

	cmd.PersistentFlags().StringP("name", "n", "", "Name of this node in the grid roster")
	viper.SetDefault("name", "")
	if err := viper.BindPFlag("name", cmd.PersistentFlags().Lookup("name")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key"))
	}

	cmd.PersistentFlags().String("secret", "", "Shared secret embedded in grid URLs")
	viper.SetDefault("secret", "")
	if err := viper.BindPFlag("secret", cmd.PersistentFlags().Lookup("secret")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key"))
	}

	cmd.PersistentFlags().Duration("poll-interval", 10*time.Second, "Interval between poll cycles")
	viper.SetDefault("poll.interval", 10*time.Second)
	if err := viper.BindPFlag("poll.interval", cmd.PersistentFlags().Lookup("poll-interval")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key"))
	}

	cmd.PersistentFlags().String("announcer", "telegram", "Announcement delivery: telegram or log")
	viper.SetDefault("announcer.mode", "telegram")
	if err := viper.BindPFlag("announcer.mode", cmd.PersistentFlags().Lookup("announcer")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key"))
	}

	cmd.PersistentFlags().StringP("addr", "a", ":8440", "Bind address of the grid HTTP server")
	viper.SetDefault("server.addr", ":8440")
	if err := viper.BindPFlag("server.addr", cmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key"))
	}

	viper.SetDefault("server.tls.cert", "")
	viper.SetDefault("server.tls.key", "")
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.chatID", 0)
	viper.SetDefault("client.rootCA", "")
	// Grid nodes commonly run on self-signed certificates.
	viper.SetDefault("client.insecureSkipVerify", true)
}

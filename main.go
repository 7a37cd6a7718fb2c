package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treemana/doh/local"
	"github.com/treemana/doh/log"
	"github.com/treemana/doh/upstream"
)

const version = "0.1.0"

// Option represents console arguments.
type Option struct {
	LocalAddress    string
	LocalPort       int
	UpstreamAddress string
	UpstreamPort    int
	LogFile         string
	Verbose         bool
	NoCache         bool
}

var option Option

var rootCmd = &cobra.Command{
	Use:           "doh",
	Short:         "DNS to DNS-over-HTTPS forwarding proxy",
	Version:       version,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&option.LocalAddress, "local-address", "127.0.0.1", "local listen address")
	flags.IntVar(&option.LocalPort, "local-port", 53, "local listen port")
	flags.StringVar(&option.UpstreamAddress, "upstream-address", "1.1.1.1", "upstream DoH host or IP")
	flags.IntVar(&option.UpstreamPort, "upstream-port", 443, "upstream DoH port")
	flags.StringVar(&option.LogFile, "log-file", "", "log file path, rotated, empty means stdout only")
	flags.BoolVar(&option.Verbose, "verbose", false, "debug logging")
	flags.BoolVar(&option.NoCache, "no-cache", false, "disable the response cache")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {

	if err := initLog(); err != nil {
		fmt.Println("log init error", err)
		return err
	}
	defer func() {
		_ = log.Logger.Sync()
		time.Sleep(time.Second)
	}()

	forwarder, err := upstream.New(option.UpstreamAddress, option.UpstreamPort, !option.NoCache)
	if err != nil {
		log.Sugar.Error(err)
		return err
	}

	// both listeners share the forwarder, and through it one cache
	udpServer, err := local.NewUDP(option.LocalAddress, option.LocalPort, forwarder)
	if err != nil {
		log.Sugar.Error(err)
		return err
	}

	var tcpServer *local.TCPServer
	if tcpServer, err = local.NewTCP(option.LocalAddress, option.LocalPort, forwarder); err != nil {
		log.Sugar.Error(err)
		_ = udpServer.Close()
		return err
	}

	go udpServer.Listen()
	go tcpServer.Listen()

	// running until os exit
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sc
	log.Sugar.Infof("signal %d %s", s, s)

	_ = udpServer.Close()
	_ = tcpServer.Close()

	return nil
}

func initLog() error {
	lc := log.Config{
		File:       option.LogFile,
		STDOUT:     true,
		MaxAge:     2,
		MaxSize:    10,
		MaxBackups: 100,
	}

	if option.Verbose {
		lc.Level = -1
	}

	return log.Init(lc)
}

package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/Conflux-Chain/confura-pending-cache/channel"
	"github.com/Conflux-Chain/confura-pending-cache/classify"
	"github.com/Conflux-Chain/confura-pending-cache/emulate"
	"github.com/Conflux-Chain/confura-pending-cache/rpc"
	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/store/leveldb"
	"github.com/Conflux-Chain/confura-pending-cache/store/memory"
	"github.com/Conflux-Chain/confura-pending-cache/ttl"
	"github.com/Conflux-Chain/go-conflux-util/cmd"
	viperUtil "github.com/Conflux-Chain/go-conflux-util/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start pending cache service to emulate mempool traces, classify actions and serve RPC queries",
	Run:   start,
}

func init() {
	startCmd.Flags().String("rpc-endpoint", "", "Fullnode RPC endpoint to poll pending transactions from")
	viper.BindPFlag("emulate.rpcEndpoint", startCmd.Flag("rpc-endpoint"))

	startCmd.Flags().String("store-path", leveldb.DefaultConfig().Path, "LevelDB database path")
	viper.BindPFlag("store.leveldb.path", startCmd.Flag("store-path"))

	rootCmd.AddCommand(startCmd)
}

func start(*cobra.Command, []string) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	cache := mustInitStoreFromViper()
	defer cache.Close()

	bus := mustInitBusFromViper()
	defer bus.Close()

	mustStartEmulation(ctx, &wg, cache, bus)
	mustStartClassification(ctx, &wg, cache, bus)
	mustStartTTLTracking(ctx, &wg, cache, bus)

	var rpcConfig rpc.Config
	viperUtil.MustUnmarshalKey("rpc", &rpcConfig)

	wg.Add(1)
	go rpc.MustServe(ctx, &wg, rpcConfig, cache)

	// wait for terminate signal to shutdown gracefully
	cmd.GracefulShutdown(&wg, cancel)
}

func mustInitStoreFromViper() store.Store {
	var config struct {
		Backend string `default:"memory"`
		Memory  memory.Config
		Leveldb leveldb.Config
	}
	viperUtil.MustUnmarshalKey("store", &config)

	switch config.Backend {
	case "memory":
		store := memory.MustNewStore(config.Memory)
		logrus.WithField("config", fmt.Sprintf("%+v", config.Memory)).Info("In-memory trace store created")
		return store
	case "leveldb":
		store, err := leveldb.NewStore(config.Leveldb)
		cmd.FatalIfErr(err, "Failed to create LevelDB trace store")
		logrus.WithField("config", fmt.Sprintf("%+v", config.Leveldb)).Info("LevelDB trace store created or opened")
		return store
	default:
		logrus.WithField("backend", config.Backend).Fatal("Unknown store backend")
		return nil
	}
}

func mustInitBusFromViper() channel.Bus {
	var config struct {
		Backend string `default:"memory"`
		Memory  channel.MemoryBusConfig
		Redis   channel.RedisBusConfig
	}
	viperUtil.MustUnmarshalKey("channel", &config)

	switch config.Backend {
	case "memory":
		return channel.NewMemoryBus(config.Memory)
	case "redis":
		bus, err := channel.NewRedisBus(config.Redis)
		cmd.FatalIfErr(err, "Failed to connect to redis event channel")
		return bus
	default:
		logrus.WithField("backend", config.Backend).Fatal("Unknown channel backend")
		return nil
	}
}

func mustStartEmulation(ctx context.Context, wg *sync.WaitGroup, cache store.Store, bus channel.Bus) {
	var config emulate.Config
	viperUtil.MustUnmarshalKey("emulate", &config)

	emulator, err := emulate.NewEmulator(config, cache, bus)
	cmd.FatalIfErr(err, "Failed to create trace emulator")

	confirmer := emulate.NewConfirmer(cache, bus)

	wg.Add(2)
	go emulator.Run(ctx, wg)
	go confirmer.Run(ctx, wg)
}

func mustStartClassification(ctx context.Context, wg *sync.WaitGroup, cache store.Store, bus channel.Bus) {
	var config classify.Config
	viperUtil.MustUnmarshalKey("classify", &config)

	pendings := classify.NewPendingsClassifier(config, cache, bus)
	general := classify.NewGeneralClassifier(config, cache, bus)

	wg.Add(2)
	go pendings.Run(ctx, wg)
	go general.Run(ctx, wg)
}

func mustStartTTLTracking(ctx context.Context, wg *sync.WaitGroup, cache store.Store, bus channel.Bus) {
	var config ttl.Config
	viperUtil.MustUnmarshalKey("ttl", &config)

	tracker := ttl.NewTracker(config, cache, bus)

	wg.Add(1)
	go tracker.Run(ctx, wg)
}

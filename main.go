package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"k8s.io/utils/clock"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"voltlight/config"
	"voltlight/dac"
	"voltlight/fade"
	"voltlight/light"
	"voltlight/logger"
	"voltlight/mqtt"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logger.SetLevel(cfg.LogLevel)
	log := logger.GetProjectLogger()

	// bring up the I2C bus and the DAC
	if _, err := host.Init(); err != nil {
		log.Fatalf("host init failed: %v", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		log.Fatalf("cannot open I2C bus %q: %v", cfg.I2CBus, err)
	}
	defer bus.Close()

	dev := dac.New(bus, cfg.I2CAddress)
	if err := dev.Begin(); err != nil {
		log.Fatalf("failed to initialize the GP8413: %v", err)
	}
	if err := dev.SetOutputRange(cfg.Range); err != nil {
		log.Fatalf("failed to set the DAC output range: %v", err)
	}
	log.Infof("GP8413 initialized with %s range", cfg.Range)

	writer := &dac.VoltageWriter{
		Dev:     dev,
		Span:    cfg.Span(),
		Channel: dac.ChannelBoth,
	}
	engine := fade.New(writer, cfg.Span(), cfg.FadeDuration, clock.RealClock{})
	engine.SetCurve(cfg.Curve())

	client := mqtt.New(mqtt.Config{
		Host:         cfg.MQTTHost,
		Port:         cfg.MQTTPort,
		Username:     cfg.MQTTUsername,
		Password:     cfg.MQTTPassword,
		ClientID:     "gp8413_" + cfg.UniqueID,
		CommandTopic: cfg.BaseTopic + "/set",
	})
	ctrl := light.NewController(engine, client, light.Config{
		Span:       cfg.Span(),
		BaseTopic:  cfg.BaseTopic,
		DeviceName: cfg.DeviceName,
		UniqueID:   cfg.UniqueID,
	})

	log.Infof("connecting to MQTT broker at %s:%d", cfg.MQTTHost, cfg.MQTTPort)
	if err := client.Connect(ctrl); err != nil {
		log.Fatalf("%v", err)
	}

	log.Info("running MQTT light controller, press Ctrl+C to stop")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down voltlight")

	// command an off transition, give the final write a moment, then force
	// the output to zero before the process exits
	ctrl.Set(false, 0)
	time.Sleep(100 * time.Millisecond)
	engine.Shutdown()
	if err := writer.Write(0); err != nil {
		log.Warnf("final zero write failed: %v", err)
	}
	client.Close()
}

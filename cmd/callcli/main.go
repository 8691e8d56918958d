package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/remindly/callcore/pkg/call"
	"github.com/remindly/callcore/pkg/config"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/profiling"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/remindly/callcore/pkg/telemetry"
	"github.com/remindly/callcore/pkg/webrtcext"
	"github.com/sirupsen/logrus"
)

// A minimal interactive client for placing and receiving calls, mostly
// useful for poking at a relay and for soak testing.
func main() {
	// Parse command line flags.
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		room           = flag.String("room", "", "room to join on start")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	deferredFunctions := []func(){}
	if *cpuProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitCPUProfiling(*cpuProfile))
	}
	if *memProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitMemoryProfiling(*memProfile))
	}

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		for _, function := range deferredFunctions {
			function()
		}
		os.Exit(0)
	}()

	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	setLogLevel(cfg.LogLevel)

	if cfg.Telemetry.OTLP.Host != "" {
		tracerProvider, err := telemetry.SetupTelemetry(cfg.Telemetry)
		if err != nil {
			logrus.WithError(err).Fatal("could not set up telemetry")
		}
		defer tracerProvider.Shutdown(context.Background()) //nolint:errcheck
	}

	connectionFactory, err := webrtcext.NewPeerConnectionFactory(cfg.WebRTC)
	if err != nil {
		logrus.WithError(err).Fatal("could not create peer connection factory")
	}

	logger := logrus.NewEntry(logrus.StandardLogger()).WithField("user_id", cfg.Identity.UserID())
	channel := signaling.NewChannel(cfg.Signaling, cfg.Identity, logger)
	defer channel.Close()

	manager := call.NewManager(cfg.Call, cfg.Identity, channel, connectionFactory, media.NewSyntheticProvider(), logger)
	defer manager.Close()

	go printNotifications(manager.Notifications())

	if *room != "" {
		manager.Connect(*room)
	}

	repl(manager)
}

func printNotifications(notifications <-chan call.Notification) {
	for notification := range notifications {
		switch n := notification.(type) {
		case call.StateChanged:
			fmt.Printf("<< call state: %s\n", n.State)
		case call.IncomingCall:
			fmt.Printf("<< incoming %s call from %s (%s), accept/decline?\n",
				n.Notice.CallType, n.Notice.CallerUsername, n.Notice.CallerID)
		case call.NoticeDismissed:
			fmt.Printf("<< incoming call dismissed: %s\n", n.Reason)
		case call.LocalMediaReady:
			fmt.Println("<< local media ready")
		case call.RemoteTrackAdded:
			fmt.Printf("<< remote %s track\n", n.Track.Kind())
		case call.CallEnded:
			fmt.Printf("<< call with %s ended\n", n.Remote)
		case call.CallFailed:
			fmt.Printf("<< call failed: %v\n", n.Err)
		case call.SignalingStateChanged:
			fmt.Printf("<< signaling: %s\n", n.State)
		}
	}
}

func repl(manager *call.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: join <room> | call <user>... [audio|video] | accept | decline | hangup | mute | unmute | state | quit")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join <room>")
				continue
			}
			manager.Connect(fields[1])
		case "leave":
			manager.Disconnect()
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user>... [audio|video]")
				continue
			}
			targets := fields[1:]
			callType := media.CallTypeAudio
			if last := media.CallType(targets[len(targets)-1]); last.Valid() {
				callType = last
				targets = targets[:len(targets)-1]
			}
			if len(targets) == 0 {
				fmt.Println("usage: call <user>... [audio|video]")
				continue
			}
			manager.PlaceCall(targets, callType)
		case "accept":
			manager.AcceptCall()
		case "decline":
			manager.DeclineCall()
		case "hangup":
			manager.HangUp()
		case "mute":
			manager.SetAudioEnabled(false)
		case "unmute":
			manager.SetAudioEnabled(true)
		case "state":
			fmt.Printf("state: %s\n", manager.CurrentState())
		case "quit":
			return
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

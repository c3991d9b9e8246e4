package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/client"
	"github.com/calvinmclean/sortcell/dns"
	"github.com/calvinmclean/sortcell/estop"
	"github.com/calvinmclean/sortcell/hal"
	"github.com/calvinmclean/sortcell/hal/serialrelay"
	"github.com/calvinmclean/sortcell/logging"
	"github.com/calvinmclean/sortcell/metrics"
	"github.com/calvinmclean/sortcell/node"
	"github.com/calvinmclean/sortcell/orchestrator"
)

var motorNodeCmd = &cobra.Command{
	Use:   "motor-node",
	Short: "Serve the steppers, servos and DC motors over HTTP",
	RunE:  runMotorNode,
}

var sensorNodeCmd = &cobra.Command{
	Use:   "sensor-node",
	Short: "Serve the sensors and relays over HTTP and watch the emergency stop",
	RunE:  runSensorNode,
}

var coordinatorFlags struct {
	autostart bool
}

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the sort cycle orchestrator",
	RunE:  runCoordinator,
}

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Answer DNS queries for the cell hostnames",
	RunE:  runDNS,
}

func init() {
	coordinatorCmd.Flags().BoolVar(&coordinatorFlags.autostart, "autostart", false, "Start the cycle loop immediately")
}

func runMotorNode(cmd *cobra.Command, _ []string) error {
	logger := logging.New("motor-node")
	m := metrics.New()

	n, err := node.NewMotorNode(newBoard(logger), cfg.MotorNode.MotorNodeConfig, logger, m)
	if err != nil {
		return fmt.Errorf("error creating motor node: %w", err)
	}
	defer func() {
		n.StopAll()
		n.Wait()
	}()

	return serve(cmd.Context(), cfg.MotorNode.Listen, n.Router(), logger)
}

func runSensorNode(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logging.New("sensor-node")
	m := metrics.New()
	board := newBoard(logger)

	var relays node.Outputs
	if cfg.SensorNode.SerialRelay != nil {
		relayBoard, closer, err := serialrelay.Open(*cfg.SensorNode.SerialRelay, logging.New("serialrelay"))
		if err != nil {
			return err
		}
		defer closer.Close()
		relays = relayBoard
	}

	n, err := node.NewSensorNode(board, relays, cfg.SensorNode.SensorNodeConfig, logger, m)
	if err != nil {
		return fmt.Errorf("error creating sensor node: %w", err)
	}
	defer n.Stop()

	pull := hal.PullNone
	if cfg.Estop.PullUp {
		pull = hal.PullUp
	}
	button, err := board.Input(cfg.Estop.Pin, pull)
	if err != nil {
		return fmt.Errorf("error configuring emergency stop input: %w", err)
	}

	flag := sortcell.NewStopFlag()
	monitor, err := estop.New(
		button,
		flag,
		client.NewCoordinator(cfg.Nodes.Coordinator, cfg.Estop.Notify),
		cfg.Estop,
		logging.New("estop"),
		m,
	)
	if err != nil {
		return fmt.Errorf("error creating emergency stop monitor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	g.Go(func() error {
		n.Follow(gctx, flag)
		return nil
	})
	g.Go(func() error {
		return serve(gctx, cfg.SensorNode.Listen, n.Router(), logger)
	})
	return g.Wait()
}

func runCoordinator(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logging.New("coordinator")
	m := metrics.New()

	o, err := orchestrator.New(
		cfg.Coordinator.Config,
		client.NewMotors(cfg.Nodes.Motors, cfg.Nodes.Retry),
		client.NewSensors(cfg.Nodes.Sensors, cfg.Nodes.Retry),
		sortcell.NewStopFlag(),
		logging.New("orchestrator"),
		m,
	)
	if err != nil {
		return err
	}
	defer o.Close()

	status := o.Status(ctx)
	for name, result := range status.Nodes {
		logger.Info("node status", "node", name, "status", result)
	}

	if cfg.Coordinator.Autostart || coordinatorFlags.autostart {
		err = o.Start(ctx)
		if err != nil {
			return fmt.Errorf("error starting cycle loop: %w", err)
		}
	}

	return serve(ctx, cfg.Coordinator.Listen, o.Router(), logger)
}

func runDNS(cmd *cobra.Command, _ []string) error {
	s, err := dns.New(cfg.DNS, logging.New("dns"), metrics.New())
	if err != nil {
		return err
	}
	return s.ListenAndServe(cmd.Context())
}

// Package main is a command line tool for querying controller-hosted kinematics.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	kin "ctrlr_kinematics"
)

const (
	flagHost    = "host"
	flagPort    = "port"
	flagTimeout = "timeout"
	flagUnits   = "units"
	flagDebug   = "debug"
	flagJoints  = "joints"
	flagPose    = "pose"
	flagAll     = "all"

	defaultCLITimeout = 5 * time.Second
)

func main() {
	app := &cli.App{
		Name:  "kinematics",
		Usage: "ask a robot controller for forward and inverse kinematics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagHost,
				Usage:    "controller `HOST`",
				Required: true,
				EnvVars:  []string{"CTRLR_HOST"},
			},
			&cli.IntFlag{
				Name:  flagPort,
				Usage: "controller command port",
				Value: kin.DefaultCommandPort,
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Usage: "connect and read timeout",
				Value: defaultCLITimeout,
			},
			&cli.StringFlag{
				Name:  flagUnits,
				Usage: "angle units, deg or rad",
				Value: string(kin.Degrees),
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "fk",
				Usage:     "compute the TCP pose for a joint configuration",
				UsageText: "kinematics --host HOST fk --joints j1,j2,j3,j4,j5,j6",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{
						Name:     flagJoints,
						Usage:    "six joint angles",
						Required: true,
					},
				},
				Action: forwardAction,
			},
			{
				Name:      "ik",
				Usage:     "compute joint angles for a TCP pose",
				UsageText: "kinematics --host HOST ik --pose x,y,z,rx,ry,rz [--all]",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{
						Name:     flagPose,
						Usage:    "TCP pose in meters and angle units",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  flagAll,
						Usage: "print every solution instead of the one closest to the actual joints",
					},
				},
				Action: inverseAction,
			},
			{
				Name:   "joints",
				Usage:  "print the actual joint position",
				Action: jointsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session holds one open controller connection for the duration of a command.
type session struct {
	controller *kin.Controller
	solver     *kin.Kinematics
	joints     kin.JointStateProvider
	units      kin.AngleUnit
}

func openSession(c *cli.Context) (*session, error) {
	logger := logging.NewLogger("kinematics-cli")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("kinematics-cli")
	}

	units, err := kin.ParseAngleUnit(c.String(flagUnits))
	if err != nil {
		return nil, err
	}

	controller, err := kin.DialController(c.Context, kin.ControllerConfig{
		Host:        c.String(flagHost),
		Port:        c.Int(flagPort),
		DialTimeout: c.Duration(flagTimeout),
		ReadTimeout: c.Duration(flagTimeout),
	}, logger)
	if err != nil {
		return nil, err
	}

	joints := kin.NewControllerJointState(controller)
	k, err := kin.NewKinematics(controller, joints, units, logger)
	if err != nil {
		return nil, multierr.Combine(err, controller.Close())
	}
	return &session{controller: controller, solver: k, joints: joints, units: units}, nil
}

func forwardAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.controller.Close()

	pose, found, err := s.solver.GetForward(c.Context, c.Float64Slice(flagJoints), s.units, nil)
	if err != nil {
		return err
	}
	if !found {
		return errNotFound("forward kinematics")
	}
	printValues(c, "pose", pose)
	return nil
}

func inverseAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.controller.Close()

	pose := c.Float64Slice(flagPose)
	if c.Bool(flagAll) {
		solutions, found, err := s.solver.GetInverseAll(c.Context, pose, s.units)
		if err != nil {
			return err
		}
		if !found {
			return errNotFound("inverse kinematics")
		}
		for i, sol := range solutions {
			printValues(c, fmt.Sprintf("solution %d", i), sol)
		}
		return nil
	}

	joints, found, err := s.solver.GetInverse(c.Context, pose, s.units)
	if err != nil {
		return err
	}
	if !found {
		return errNotFound("inverse kinematics")
	}
	printValues(c, "joints", joints)
	return nil
}

func jointsAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.controller.Close()

	joints, err := s.joints.ActualJointPosition(c.Context, s.units)
	if err != nil {
		return err
	}
	printValues(c, "joints", joints)
	return nil
}

func printValues(c *cli.Context, label string, values []float64) {
	fmt.Fprintf(c.App.Writer, "%s (%s):", label, c.String(flagUnits))
	for _, v := range values {
		fmt.Fprintf(c.App.Writer, " %.6f", v)
	}
	fmt.Fprintln(c.App.Writer)
}

func errNotFound(what string) error {
	return errors.Errorf("%s: controller returned no solution", what)
}

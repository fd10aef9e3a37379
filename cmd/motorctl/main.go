package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mastercactapus/motorctl/config"
	"github.com/mastercactapus/motorctl/logging"
	"github.com/mastercactapus/motorctl/machine/grbl"
	"github.com/mastercactapus/motorctl/machine/serial"
	"github.com/mastercactapus/motorctl/position"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// closeTimeout bounds recording the position on the way out, after the
// command context may already be cancelled.
const closeTimeout = 10 * time.Second

type app struct {
	envFile string
	verbose bool

	port     string
	driver   string
	spjsURL  string
	baud     int
	name     string
	id       int
	feedRate float64
	posFile  string

	cfg *config.Config
	log *logrus.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(&app{}).ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "motorctl",
		Short:        "Drive a Grbl motor controller over a serial port.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.envFile, "env", "", "Load settings from this .env file (default ./.env).")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "Log every command, response and status sample.")
	f.StringVarP(&a.port, "port", "p", "", "Serial port path (MOTOR_PORT).")
	f.StringVar(&a.driver, "driver", "", "Serial driver: tarm, bugst or spjs (MOTOR_DRIVER).")
	f.StringVar(&a.spjsURL, "spjs", "", "Websocket URL of the SPJS server, implies --driver spjs (MOTOR_SPJS_URL).")
	f.IntVar(&a.baud, "baud", 0, "Baud rate (MOTOR_BAUD).")
	f.StringVar(&a.name, "name", "", "Motor name used in logs (MOTOR_NAME).")
	f.IntVar(&a.id, "id", 0, "Motor id stored with each position record (MOTOR_ID).")
	f.Float64Var(&a.feedRate, "feed-rate", 0, "Default feed rate for moves (MOTOR_FEED_RATE).")
	f.StringVar(&a.posFile, "positions", "", "Position log file (MOTOR_POSITION_FILE).")

	root.AddCommand(
		portsCmd(a),
		statusCmd(a),
		moveCmd(a),
		homeCmd(a),
		unlockCmd(a),
		spindleCmd(a),
		sendCmd(a),
		streamCmd(a),
		serveCmd(a),
	)
	return root
}

// load builds the configuration; flags given on the command line win over the environment.
func (a *app) load(cmd *cobra.Command) error {
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}
	a.cfg = config.Load(files...)

	flags := cmd.Flags()
	if flags.Changed("port") {
		a.cfg.Serial.Device = a.port
	}
	if flags.Changed("driver") {
		a.cfg.Serial.Driver = a.driver
	}
	if flags.Changed("spjs") {
		a.cfg.Serial.BridgeURL = a.spjsURL
		if !flags.Changed("driver") {
			a.cfg.Serial.Driver = serial.DriverSPJS
		}
	}
	if flags.Changed("baud") {
		a.cfg.Serial.Baud = a.baud
	}
	if flags.Changed("name") {
		a.cfg.Motor.Name = a.name
	}
	if flags.Changed("id") {
		a.cfg.Motor.ID = a.id
	}
	if flags.Changed("feed-rate") {
		a.cfg.Motor.FeedRate = a.feedRate
	}
	if flags.Changed("positions") {
		a.cfg.PositionFile = a.posFile
	}

	a.log = logging.New(logging.Verbose(a.cfg.LogLevel, a.verbose))
	return nil
}

func (a *app) options(onStatus func(grbl.Status)) grbl.Options {
	opts := a.cfg.Motor.Options()
	opts.Store = position.NewFileStore(a.cfg.PositionFile)
	opts.Logger = a.log
	opts.OnStatus = onStatus
	return opts
}

func (a *app) close(c *grbl.Controller) error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.Close(ctx)
}

// session connects, runs fn, and closes the session so the position is recorded.
func (a *app) session(ctx context.Context, fn func(context.Context, *grbl.Controller) error) error {
	c, err := grbl.Dial(ctx, &a.cfg.Serial, a.options(nil))
	if err != nil {
		a.log.WithError(err).Error("connect")
		return err
	}
	err = fn(ctx, c)
	if err != nil {
		a.log.WithError(err).Error("command failed")
	}
	cerr := a.close(c)
	if cerr != nil {
		a.log.WithError(cerr).Error("close")
	}
	return errors.Join(err, cerr)
}

func printResponse(resp string) {
	if resp != "" {
		fmt.Println(resp)
	}
}

func portsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.List()
			if err != nil {
				return err
			}
			for _, p := range ports {
				if p.USB {
					fmt.Printf("%s\t%s:%s\t%s\n", p.Name, p.VID, p.PID, p.Product)
				} else {
					fmt.Println(p.Name)
				}
			}
			return nil
		},
	}
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the controller state and positions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				stat, err := c.Status(ctx, a.verbose)
				if err != nil {
					return err
				}
				fmt.Printf("state:\t%s\nmpos:\t%s\nwpos:\t%s\n", stat.State, stat.MPos, stat.WPos)
				return nil
			})
		},
	}
}

func moveCmd(a *app) *cobra.Command {
	var feed float64
	cmd := &cobra.Command{
		Use:   "move AXIS POSITION",
		Short: "Move one axis (X, Y, Z or 1, 2, 3) and wait for it to finish.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("position: %w", err)
			}
			var feedRate []float64
			if cmd.Flags().Changed("feed") {
				feedRate = append(feedRate, feed)
			}
			// reject a bad axis before touching the machine
			_, err = grbl.ParseAxis(args[0])
			if err != nil {
				return err
			}
			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				resp, err := c.Move(ctx, args[0], pos, feedRate...)
				printResponse(resp)
				return err
			})
		},
	}
	cmd.Flags().Float64VarP(&feed, "feed", "f", 0, "Feed rate for this move.")
	return cmd
}

func homeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Run the homing cycle ($H).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				resp, err := c.Home(ctx)
				printResponse(resp)
				return err
			})
		},
	}
}

func unlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear an alarm lock ($X).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				resp, err := c.Unlock(ctx)
				printResponse(resp)
				return err
			})
		},
	}
}

func spindleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "spindle SPEED",
		Short: "Set the spindle speed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("speed: %w", err)
			}
			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				resp, err := c.SetSpindleSpeed(ctx, speed)
				printResponse(resp)
				return err
			})
		},
	}
}

func sendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send COMMAND...",
		Short: "Send a raw command and wait for it to finish.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				resp, err := c.Send(ctx, grbl.Command(line))
				printResponse(resp)
				return err
			})
		},
	}
}

func streamCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stream FILE",
		Short: "Send a G-code file line by line.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return a.session(cmd.Context(), func(ctx context.Context, c *grbl.Controller) error {
				n, err := c.StreamGCode(ctx, f)
				a.log.WithField("commands", n).Info("stream finished")
				return err
			})
		},
	}
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold a session open and expose it over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.HTTPAddr
			}
			ctx := cmd.Context()

			events := newStatusEvents(a.log)
			defer events.Shutdown()

			c, err := grbl.Dial(ctx, &a.cfg.Serial, a.options(events.publish))
			if err != nil {
				a.log.WithError(err).Error("connect")
				return err
			}
			defer func() {
				err := a.close(c)
				if err != nil {
					a.log.WithError(err).Error("close")
				}
			}()

			api := newAPI(c, events, a.log)
			srv := &http.Server{
				Addr: addr,
				Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					w.Header().Set("Access-Control-Allow-Origin", "*")
					w.Header().Set("Access-Control-Allow-Methods", "*")
					a.log.Debugf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
					api.ServeHTTP(w, req)
				}),
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			a.log.WithField("addr", addr).Info("listening")
			err = srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9091", "Address to serve the HTTP API on (HTTP_ADDR).")
	return cmd
}

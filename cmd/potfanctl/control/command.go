// Package control gathers the one-shot commands sent to potfand.
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/mdouchement/potfand"
	"github.com/spf13/cobra"
)

func SetCommand(client *http.Client) *cobra.Command {
	var on, off bool
	var speed int

	cmd := &cobra.Command{
		Use:   "set <fan>",
		Short: "Switch a fan and/or set its speed level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var call potfand.FanCall
			switch {
			case on && off:
				return errors.New("--on and --off are mutually exclusive")
			case on:
				call.State = potfand.ToPtr(true)
			case off:
				call.State = potfand.ToPtr(false)
			}
			if cmd.Flags().Changed("speed") {
				call.Speed = potfand.ToPtr(speed)
			}
			if call.State == nil && call.Speed == nil {
				return errors.New("nothing to do, use --on, --off or --speed")
			}

			var result potfand.FanResult
			err := post(client, "http://unix/fans/"+args[0], call, &result)
			printFan(result.FanState)
			if err != nil {
				return err
			}
			if result.Error != "" {
				return errors.New(result.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&on, "on", "", false, "Switch the fan on")
	cmd.Flags().BoolVarP(&off, "off", "", false, "Switch the fan off")
	cmd.Flags().IntVarP(&speed, "speed", "s", 0, "Speed level")

	return cmd
}

func WiperCommand(client *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:       "wiper <device> <write VALUE|increment|decrement|read>",
		Short:     "Operate the wiper of a device not owned by a fan",
		Args:      cobra.RangeArgs(2, 3),
		ValidArgs: []string{potfand.DeviceWrite, potfand.DeviceIncrement, potfand.DeviceDecrement, potfand.DeviceRead},
		RunE: func(_ *cobra.Command, args []string) error {
			var call any
			if args[1] == potfand.DeviceWrite {
				if len(args) != 3 {
					return errors.New("write requires a value")
				}

				v, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("value: %w", err)
				}
				call = potfand.DeviceCall{Value: v}
			}

			var result potfand.DeviceResult
			err := post(client, fmt.Sprintf("http://unix/devices/%s/%s", args[0], args[1]), call, &result)
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d\n", result.Name, result.Value)
			if result.Error != "" {
				return errors.New(result.Error)
			}
			return nil
		},
	}
}

func DumpCommand(client *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Dump the configuration and health of devices and fans",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client.Get("http://unix/diagnostics")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var d potfand.Diagnostics
			if err = json.NewDecoder(resp.Body).Decode(&d); err != nil {
				return err
			}

			for _, dev := range d.Devices {
				fmt.Printf("Device %s:\n", dev.Name)
				fmt.Printf("  Model: %s (max clock %s)\n", dev.Model, dev.MaxClock)
				fmt.Printf("  Initial value: %d\n", dev.InitialValue)
				fmt.Printf("  Current value: %d\n", dev.CurrentValue)
				if dev.Terminals != nil {
					fmt.Printf("  Terminals: %s\n", dev.Terminals)
				}
				if dev.Owner != "" {
					fmt.Printf("  Owner: %s\n", dev.Owner)
				}
				printHealth(dev.Failed, dev.Error)
			}

			for _, fan := range d.Fans {
				fmt.Printf("Fan %s:\n", fan.Name)
				if fan.Label != "" {
					fmt.Printf("  Label: %s\n", fan.Label)
				}
				fmt.Printf("  Device: %s (terminal switching: %t)\n", fan.Device, fan.Terminals)
				fmt.Printf("  Speed count: %d\n", fan.SpeedCount)
				fmt.Printf("  State: %s - speed %d - wiper %d\n", onoff(fan.On), fan.Speed, fan.Wiper)
				printHealth(fan.Failed, fan.Error)
			}

			return nil
		},
	}
}

func post(client *http.Client, url string, body, result any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		p, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(p)
	}

	resp, err := client.Post(url, "application/json", r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(result)
	if err != nil {
		return fmt.Errorf("%s: %w", resp.Status, err)
	}
	return nil
}

func printFan(state potfand.FanState) {
	if state.Name == "" {
		return
	}
	fmt.Fprintf(os.Stdout, "%s: %s - speed %d - wiper %d\n", state.Name, onoff(state.On), state.Speed, state.Wiper)
}

func printHealth(failed bool, msg string) {
	if !failed {
		fmt.Println("  Status: healthy")
		return
	}
	fmt.Printf("  Status: failed (%s)\n", msg)
}

func onoff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

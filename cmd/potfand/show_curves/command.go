package showcurves

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/go-analyze/charts"
	"github.com/mattn/go-sixel"
	"github.com/mdouchement/potfand"
	"github.com/mdouchement/potfand/hwmon/sensor"
	"github.com/mdouchement/potfand/mcp4xxx"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var resolution int

	cmd := &cobra.Command{
		Use:   "show-curves",
		Short: "Show the wiper curves for each fan",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := potfand.Load(cpath)
			if err != nil {
				return err
			}

			collector, err := sensor.New()
			if err != nil {
				return err
			}
			defer collector.Close()

			temps, err := collector.Temperatures()
			if err != nil {
				return err
			}

			shaper, err := potfand.NewCurveShaper(cfg, temps)
			if err != nil {
				return err
			}

			var maxT float64
			for _, fan := range cfg.FanSettings {
				for _, p := range fan.CurvePoints {
					for _, v := range p.Thresholds {
						maxT = max(maxT, v)
					}
				}
			}
			maxT = max(maxT, 100) // Set defaults to 100°C which leads to better x-axis values.

			ids := map[string]sensor.TemperatureID{}
			for _, t := range temps {
				ids[t.Name] = t.ID
			}

			for _, name := range slices.Sorted(maps.Keys(cfg.FanSettings)) {
				fan := cfg.FanSettings[name]
				if len(fan.CurvePoints) == 0 {
					continue
				}

				//
				// Compute points
				//

				sources := map[string]bool{}
				for _, p := range fan.CurvePoints {
					for tname := range p.Thresholds {
						sources[tname] = true
					}
				}

				const decimals = 10 // HWMON can return 42.321°C
				var set charts.LineSeriesList
				for _, source := range slices.Sorted(maps.Keys(sources)) {
					ls := charts.LineSeries{Name: source}

					for t := range int(maxT) + 1 {
						for decimal := range decimals {
							temperature := float64(t) + float64(decimal)/float64(decimals)
							level := shaper.Level(name, ids[source], temperature)
							ls.Values = append(ls.Values, float64(potfand.SpeedToWiper(level, fan.SpeedCount)))
						}
					}

					set = append(set, ls)
				}

				//
				// Render charts
				//

				opt := charts.NewLineChartOptionWithSeries(set)
				opt.Theme = charts.GetTheme(charts.ThemeVividDark)
				opt.Padding = charts.NewBox(20, 20, 20, 20)
				opt.Title.Text = fmt.Sprintf("%s: %s", name, fan.Label)
				opt.Title.FontStyle.FontSize = 16
				opt.Title.Offset = charts.OffsetLeft
				opt.Legend = charts.LegendOption{
					Show:     potfand.ToPtr(true),
					Offset:   charts.OffsetCenter,
					Vertical: potfand.ToPtr(true),
					Padding:  charts.NewBox(0, 0, 0, 20),
				}
				opt.Symbol = charts.SymbolNone
				opt.LineStrokeWidth = 2
				opt.XAxis.Show = potfand.ToPtr(true)
				opt.XAxis.Title = "°C"
				opt.XAxis.Labels = []string{} // Reset
				for t := range int(maxT) + 1 {
					for range decimals {
						// Same label for all decimals of an integer, it gives a better `LabelCount' display.
						opt.XAxis.Labels = append(opt.XAxis.Labels, strconv.Itoa(t))
					}
				}
				opt.XAxis.LabelCount = int(maxT) / 10
				opt.YAxis = []charts.YAxisOption{
					{
						Show:                   potfand.ToPtr(true),
						Title:                  "wiper",
						Min:                    potfand.ToPtr(float64(0)),
						Max:                    potfand.ToPtr(float64(mcp4xxx.MaxValue)),
						RangeValuePaddingScale: potfand.ToPtr(float64(0)),
						Unit:                   16,
					},
				}
				p := charts.NewPainter(charts.PainterOptions{
					OutputFormat: charts.ChartOutputPNG,
					Width:        resolution,
					Height:       int(float64(resolution) / (16.0 / 9.0)),
				})

				err := p.LineChart(opt)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}

				mPNG, err := p.Bytes()
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}

				m, _, err := image.Decode(bytes.NewReader(mPNG))
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}

				codec := sixel.NewEncoder(os.Stdout)
				err = codec.Encode(m)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/potfand/potfand.yml", "Configfile path")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 1000, "The width size in pixel of each graph")

	return cmd
}

package report

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batteryStats = `Battery History (2% used, 8KB used of 4096KB, 45 strings using 2KB):
                    0 (10) RESET:TIME: 2024-03-09-14-05-07
                    0 (2) 085 status=discharging health=good plug=none temp=291 volt=4000 charge=3012 current=-500
               +1s002ms (2) 085 current=-300
               +2s004ms (2) 084 volt=3900 current=-200
               +3s010ms (1) 084 volt=3800
               +4s000ms (2) 084 +wake_lock=u0a123:"job"
`

func TestParseBatteryStats(t *testing.T) {
	samples, err := ParseBatteryStats(strings.NewReader(batteryStats))
	require.NoError(t, err)

	assert.Equal(t, []int64{4000, 4000, 3900}, samples.VoltageMV)
	assert.Equal(t, []int64{-500, -300, -200}, samples.CurrentMA)
	// (4000*500 + 4000*300 + 3900*200) / 1e6 / 3
	assert.InDelta(t, (2.0+1.2+0.78)/3, samples.AveragePowerW(), 1e-12)
}

func TestParseBatteryStatsCurrentBeforeVoltage(t *testing.T) {
	samples, err := ParseBatteryStats(strings.NewReader("current=-100\ncurrent=-50 volt=3700\ncurrent=-25\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3700, 3700}, samples.VoltageMV)
	assert.Equal(t, []int64{-50, -25}, samples.CurrentMA)
}

func TestParseBatteryStatsNoSamples(t *testing.T) {
	_, err := ParseBatteryStats(strings.NewReader("volt=4000\nnothing here\n"))
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestEnergyPerInferenceWh(t *testing.T) {
	// 2 W for 1800 us is 3.6 mJ, or 1e-6 Wh.
	assert.InDelta(t, 1e-6, EnergyPerInferenceWh(2, 1800), 1e-15)
	assert.Zero(t, EnergyPerInferenceWh(0, 1000))
}

func TestReadPerformanceCSV(t *testing.T) {
	row, err := ReadPerformanceCSV(strings.NewReader(strings.Join(Header, ",") +
		"\nzi_t/conv.onnx,20240309_140507,5000,10000.000,2000.000,10.000,100,1500.000\n"))
	require.NoError(t, err)
	assert.Equal(t, PerformanceRow{
		Model:          "zi_t/conv.onnx",
		Timestamp:      "20240309_140507",
		Iterations:     5000,
		USPerInference: 2000,
		TotalTimeSec:   10,
	}, row)

	_, err = ReadPerformanceCSV(strings.NewReader(strings.Join(Header, ",") +
		"\nm.onnx,20240309_140507,0,10000.000,undefined,10.000,0,0.000\n"))
	assert.Error(t, err)

	_, err = ReadPerformanceCSV(strings.NewReader(strings.Join(Header, ",") + "\n"))
	assert.Error(t, err)

	_, err = ReadPerformanceCSV(strings.NewReader("model,timestamp\nm.onnx,20240309_140507\n"))
	assert.ErrorContains(t, err, "measurement_iterations")
}

func writeMeasurement(t *testing.T, dir, model, ts string, iterations int, usPerInf string, stats string) {
	t.Helper()
	base := strings.ReplaceAll(model, "/", "_") + "_" + ts
	perf := strings.Join(Header, ",") + "\n" +
		strings.Join([]string{model, ts, strconv.Itoa(iterations), "10000.000", usPerInf, "10.000", "0", "0.000"}, ",") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, base+"_performance.csv"), []byte(perf), 0o644))
	if stats != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, base+"_batterystats.txt"), []byte(stats), 0o644))
	}
}

func TestBuildMeasurementReport(t *testing.T) {
	dir := t.TempDir()
	stats2W := "volt=4000 current=-500\n"
	stats1W := "volt=4000 current=-250\n"

	writeMeasurement(t, dir, "zi_t/a.onnx", "20240101_100000", 1000, "1800.000", stats2W)
	writeMeasurement(t, dir, "zi_t/a.onnx", "20240102_100000", 3000, "3600.000", stats1W)
	writeMeasurement(t, dir, "b.onnx", "20240101_110000", 500, "7200.000", stats2W)
	writeMeasurement(t, dir, "c.onnx", "20240101_120000", 10, "100.000", "")
	writeMeasurement(t, dir, "d.onnx", "20240101_130000", 10, "100.000", "no samples\n")

	report, err := BuildMeasurementReport(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Models, 2)

	a := report.Models[0]
	assert.Equal(t, "zi_t/a.onnx", a.Model)
	assert.Equal(t, 2, a.Runs)
	assert.InDelta(t, 1.5, a.AvgPowerW, 1e-12)
	assert.InDelta(t, 1e-6, a.EnergyWh, 1e-15)
	assert.InDelta(t, 2000, a.Iterations, 1e-9)
	assert.InDelta(t, 2700, a.USPerInference, 1e-9)

	b := report.Models[1]
	assert.Equal(t, "b.onnx", b.Model)
	assert.Equal(t, 1, b.Runs)
	assert.InDelta(t, 4e-6, b.EnergyWh, 1e-15)

	table := report.Render()
	assert.Contains(t, table, "Energy (Wh)")
	assert.Contains(t, table, "a")
	assert.Contains(t, table, "0.000004")
	assert.NotContains(t, table, ".onnx")

	path, err := report.WriteCSV(filepath.Join(t.TempDir(), "reports"), time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "measurements_data_20240309_140507.csv", filepath.Base(path))

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, DataHeader, rows[0])
	assert.Equal(t, "b.onnx", rows[1][0])
	assert.Equal(t, "20240101_110000", rows[1][1])
	assert.Equal(t, "1", rows[1][2])
	assert.Equal(t, "2", rows[1][3])
	assert.Equal(t, "zi_t/a.onnx", rows[2][0])
}

func TestAggregateOrdering(t *testing.T) {
	entries := []MeasurementEntry{
		{PerformanceRow: PerformanceRow{Model: "low", Timestamp: "t1"}, EnergyWh: 1},
		{PerformanceRow: PerformanceRow{Model: "high", Timestamp: "t1"}, EnergyWh: 5},
		{PerformanceRow: PerformanceRow{Model: "many", Timestamp: "t1"}, EnergyWh: 0.1},
		{PerformanceRow: PerformanceRow{Model: "many", Timestamp: "t2"}, EnergyWh: 0.1},
		{PerformanceRow: PerformanceRow{Model: "dup", Timestamp: "t1"}, EnergyWh: 2},
		{PerformanceRow: PerformanceRow{Model: "dup", Timestamp: "t1"}, EnergyWh: 4},
	}

	models := Aggregate(entries)
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Model
	}
	assert.Equal(t, []string{"many", "high", "dup", "low"}, names)
	assert.Equal(t, 1, models[2].Runs)
	assert.InDelta(t, 3.0, models[2].EnergyWh, 1e-12)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "conv_w128", DisplayName("zi_t/conv_w128.onnx"))
	assert.Equal(t, "model", DisplayName(`dir\model.onnx`))
	assert.Equal(t, "plain", DisplayName("plain"))
}

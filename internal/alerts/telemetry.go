package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	logx "valwatch/pkg/logx"
)

// telemetryCheck watches five node metrics, each as its own level-triggered alert.
type telemetryCheck struct{ base }

type metricSpec struct {
	name string
	band Band
	read func(t toncenter.Telemetry) (metricReading, error)
}

func (c *telemetryCheck) specs() []metricSpec {
	th := c.Thresholds
	return []metricSpec{
		{name: MetricSync, band: th.Sync, read: readSync},
		{name: MetricCPU, band: th.CPU, read: readCPU},
		{name: MetricRAM, band: th.RAM, read: readRAM},
		{name: MetricNetwork, band: th.Network, read: readNetwork},
		{name: MetricDisk, band: th.Disk, read: readDisk},
	}
}

func (c *telemetryCheck) Run(ctx context.Context, users []storage.User) error {
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		nodes, err := c.Store.UserNodes(ctx, u.ID)
		if err != nil {
			c.log.Warn("load nodes failed", logx.Int64("user_id", u.ID), logx.Err(err))
			continue
		}

		var g errgroup.Group
		g.SetLimit(c.NodeConcurrency)
		for _, node := range nodes {
			g.Go(func() error {
				c.evaluateNode(ctx, u.ID, node)
				return nil
			})
		}
		_ = g.Wait()
	}
	return nil
}

func (c *telemetryCheck) evaluateNode(ctx context.Context, userID int64, node storage.Node) {
	log := c.log.With(logx.Int64("user_id", userID), logx.String("adnl", node.ADNL))
	defer func() {
		if r := recover(); r != nil {
			log.Error("telemetry node panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	tel, err := c.Upstream.Telemetry(ctx, node.ADNL)
	if errors.Is(err, toncenter.ErrNoTelemetry) {
		log.Debug("no recent telemetry")
		return
	}
	if err != nil {
		log.Warn("telemetry fetch failed", logx.Err(err))
		return
	}

	specs := c.specs()
	var wg sync.WaitGroup
	wg.Add(len(specs))
	for _, spec := range specs {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error("telemetry metric panicked", logx.String("metric", spec.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			if err := c.evaluateMetric(ctx, userID, node, tel, spec); err != nil {
				log.Warn("telemetry metric failed", logx.String("metric", spec.name), logx.Err(err))
			}
		}()
	}
	wg.Wait()
}

func (c *telemetryCheck) evaluateMetric(ctx context.Context, userID int64, node storage.Node, tel toncenter.Telemetry, spec metricSpec) error {
	reading, err := spec.read(tel)
	if err != nil {
		return err
	}
	level := spec.band.Classify(reading.Value)
	if level == NoChange {
		return nil
	}
	reading.Metric = spec.name
	reading.Threshold = spec.band.Lower
	if level == Overloaded {
		reading.Threshold = spec.band.Upper
	}

	_, err = c.Informer.Inform(ctx, Notice{
		UserID:     userID,
		Key:        TelemetryKey(spec.name, node.ADNL),
		Kind:       TelemetryAlert,
		Text:       telemetryText(node.ADNL, node.Label, reading, level),
		Policy:     LevelTriggered,
		Overloaded: level == Overloaded,
	})
	return err
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func fmtNum(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func readSync(t toncenter.Telemetry) (metricReading, error) {
	return metricReading{Value: t.ValidatorStatus.OutOfSync}, nil
}

func readCPU(t toncenter.Telemetry) (metricReading, error) {
	d := t.Data
	if len(d.CPULoad) < 3 {
		return metricReading{}, fmt.Errorf("cpuLoad has %d samples", len(d.CPULoad))
	}
	if d.CPUNumber <= 0 {
		return metricReading{}, fmt.Errorf("invalid cpuNumber %v", d.CPUNumber)
	}
	load := d.CPULoad[2]
	return metricReading{
		Value:  round2(load / d.CPUNumber * 100),
		Detail: fmt.Sprintf("Load average: %s of %s cores", fmtNum(load), fmtNum(d.CPUNumber)),
	}, nil
}

func readRAM(t toncenter.Telemetry) (metricReading, error) {
	m := t.Data.Memory
	if m.Total <= 0 {
		return metricReading{}, fmt.Errorf("invalid memory total %v", m.Total)
	}
	return metricReading{
		Value:  round2(m.Usage / m.Total * 100),
		Detail: fmt.Sprintf("Memory used: %s of %s", fmtNum(round2(m.Usage)), fmtNum(round2(m.Total))),
	}, nil
}

func readNetwork(t toncenter.Telemetry) (metricReading, error) {
	if len(t.Data.NetLoad) < 3 {
		return metricReading{}, fmt.Errorf("netLoad has %d samples", len(t.Data.NetLoad))
	}
	return metricReading{Value: t.Data.NetLoad[2]}, nil
}

func readDisk(t toncenter.Telemetry) (metricReading, error) {
	disk, err := validatorDisk(t.Data)
	if err != nil {
		return metricReading{}, err
	}
	pct := t.Data.DisksLoadPercent[disk]
	if len(pct) < 3 {
		return metricReading{}, fmt.Errorf("disksLoadPercent[%s] has %d samples", disk, len(pct))
	}
	r := metricReading{Value: pct[2]}
	if load := t.Data.DisksLoad[disk]; len(load) >= 3 {
		r.Detail = fmt.Sprintf("Disk %s: %s MB/s", disk, fmtNum(load[2]))
	}
	return r, nil
}

// validatorDisk picks the disk backing the validator database, falling back
// to the alphabetically first reported disk.
func validatorDisk(d toncenter.TelemetryData) (string, error) {
	name := path.Base(d.ValidatorDiskName)
	if _, ok := d.DisksLoad[name]; ok && d.ValidatorDiskName != "" {
		return name, nil
	}
	if len(d.DisksLoad) == 0 {
		return "", errors.New("no disks reported")
	}
	names := make([]string, 0, len(d.DisksLoad))
	for n := range d.DisksLoad {
		names = append(names, n)
	}
	sort.Strings(names)
	return names[0], nil
}

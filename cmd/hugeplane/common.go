package main

import (
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sugawarayuuta/sonnet"
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/hugeplane/app/channel"
	"github.com/usnistgov/hugeplane/mem/hugeblob"
	"go.uber.org/zap"
)

// blobArgs contains HugeBlob command line arguments.
type blobArgs struct {
	hugeblob.Config
	Size     uint64 `json:"size"`
	Seed     uint64 `json:"seed,omitempty"`
	Prefault bool   `json:"prefault,omitempty"`
}

func (a *blobArgs) flags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:        "size",
			Usage:       "blob size in `octets`",
			Value:       64 << 20,
			Destination: &a.Size,
		},
		&cli.StringFlag{
			Name:        "dir",
			Usage:       "backing file `directory`, normally a hugetlbfs mount",
			Value:       hugeblob.DefaultDir,
			Destination: &a.Dir,
		},
		&cli.StringFlag{
			Name:        "name",
			Usage:       "backing file `name`",
			Destination: &a.Name,
		},
		&cli.BoolFlag{
			Name:        "anonymous",
			Usage:       "use an anonymous mapping",
			Destination: &a.Anonymous,
		},
		&cli.BoolFlag{
			Name:        "keep",
			Usage:       "preserve backing file contents on exit",
			Destination: &a.Keep,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "fill blob with xorshift stream of `seed`; 0 leaves contents unchanged",
			Destination: &a.Seed,
		},
		&cli.BoolFlag{
			Name:        "prefault",
			Usage:       "touch every page before use",
			Destination: &a.Prefault,
		},
	}
}

func (a *blobArgs) Map() (*hugeblob.Blob, error) {
	blob, e := hugeblob.Map(a.Size, a.Config)
	if e != nil {
		return nil, e
	}
	if a.Prefault {
		blob.Prefault(0)
	}
	if a.Seed != 0 {
		blob.Fill(a.Seed)
	}
	return blob, nil
}

// loopArgs contains arguments of a running channel.
type loopArgs struct {
	Duration time.Duration
	Cnt      time.Duration
}

func (a *loopArgs) flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "duration",
			Usage:       "run `duration`; 0 runs until SIGINT or SIGTERM",
			Destination: &a.Duration,
		},
		&cli.DurationFlag{
			Name:        "cnt",
			Usage:       "print counters every `interval`; 0 disables",
			Value:       time.Second,
			Destination: &a.Cnt,
		},
	}
}

type runnable interface {
	Counters() channel.Counters
	Stop()
	Join() error
}

// run prints counters until timeout or signal, then stops the channel and prints final counters.
func (a loopArgs) run(ch runnable) error {
	go systemdNotify()

	var timeout, tick <-chan time.Time
	if a.Duration > 0 {
		timeout = time.After(a.Duration)
	}
	if a.Cnt > 0 {
		ticker := time.NewTicker(a.Cnt)
		defer ticker.Stop()
		tick = ticker.C
	}

	t0 := time.Now()
	var prev channel.Counters
loop:
	for {
		select {
		case <-tick:
			cnt := ch.Counters()
			printCounters(t0, cnt, cnt.Sub(prev))
			prev = cnt
		case <-timeout:
			break loop
		case sig := <-interrupt:
			logger.Info("stop requested by signal", zap.Stringer("signal", sig))
			break loop
		}
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	ch.Stop()
	e := ch.Join()
	cnt := ch.Counters()
	printCounters(t0, cnt, cnt.Sub(prev))
	logger.Info("stopped", zap.Stringer("cnt", cnt), zap.Error(e))
	return e
}

func printCounters(t0 time.Time, cnt, diff channel.Counters) {
	printJSON(struct {
		Elapsed float64 `json:"elapsed"`
		channel.Counters
		Interval channel.Counters `json:"interval"`
	}{time.Since(t0).Seconds(), cnt, diff})
}

func printJSON(value any) {
	j, e := sonnet.Marshal(value)
	if e != nil {
		logger.Error("JSON encode error", zap.Error(e))
		return
	}
	os.Stdout.Write(append(j, '\n'))
}

func systemdNotify() {
	daemon.SdNotify(false, daemon.SdNotifyReady)

	d, e := daemon.SdWatchdogEnabled(false)
	if d == 0 || e != nil {
		logger.Debug("systemd watchdog not configured", zap.Error(e))
		return
	}

	d /= 2
	logger.Debug("systemd watchdog enabled", zap.Duration("duration", d))
	for range time.Tick(d) {
		daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	}
}

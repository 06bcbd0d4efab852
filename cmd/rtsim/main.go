package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/typing"

	"github.com/xaionaro-go/rttable"
	"github.com/xaionaro-go/rttable/session"
	"github.com/xaionaro-go/rttable/types"
)

// rtsim drives a render target table through a synthetic encode session:
// every picture sets a current target and a recon target and references a
// sliding window of previously reconstructed surfaces, which exercises the
// registration and eviction paths the same way a codec-specific DDI layer
// would.
func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	capacity := pflag.Uint("capacity", 16, "amount of render target slots")
	pictures := pflag.Uint("pictures", 300, "amount of pictures to process")
	refs := pflag.Uint("refs", 4, "amount of past reconstructed surfaces each picture references")
	maxHistory := pflag.Uint("max-history", 0, "usage history bound in pictures (0 means the default)")
	pflag.Parse()
	if len(pflag.Args()) != 0 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) {
			logger.FromCtx(ctx).Error(http.ListenAndServe(*netPprofAddr, nil))
		})
	}

	cfg := session.Config{
		Capacity: *capacity,
	}
	if *maxHistory != 0 {
		cfg.MaxHistory = typing.Opt(*maxHistory)
	}

	sess, err := session.New(ctx, cfg)
	if err != nil {
		l.Fatal(err)
	}
	defer sess.Close(ctx)

	// surface IDs are issued by the surface owner; here we just mint two
	// disjoint ranges, one for the decoded pictures and one for their
	// reconstructions
	targetID := func(picture uint) types.SurfaceID { return types.SurfaceID(1000 + picture) }
	reconID := func(picture uint) types.SurfaceID { return types.SurfaceID(2000 + picture) }

	for picture := uint(0); picture < *pictures; picture++ {
		if err := sess.BeginPicture(ctx); err != nil {
			l.Fatal(err)
		}
		if err := sess.SetTarget(ctx, targetID(picture)); err != nil {
			l.Fatal(err)
		}
		if err := sess.SetReconTarget(ctx, reconID(picture)); err != nil {
			l.Fatal(err)
		}
		for lag := uint(1); lag <= *refs && lag <= picture; lag++ {
			refSurface := reconID(picture - lag)
			err := sess.UseSurface(ctx, refSurface)
			switch {
			case err == nil:
			case errors.As(err, &rttable.ErrNoInactiveTarget{}):
				l.Errorf("out of render target slots on picture %d (%s): capacity %d is too low for %d references", picture, refSurface, *capacity, *refs)
			default:
				l.Fatal(err)
			}
		}
		slot := sess.SlotOf(ctx, targetID(picture))
		l.Debugf("picture %d: target %s -> %s, %d surfaces registered", picture, targetID(picture), slot, sess.Count(ctx))

		if (picture+1)%100 == 0 {
			printStats(l, sess)
		}
	}

	printStats(l, sess)
}

func printStats(l logger.Logger, sess *session.Session) {
	statsJSON, err := json.Marshal(sess.GetStats())
	if err != nil {
		l.Fatal(err)
	}
	fmt.Printf("%s\n", statsJSON)
}

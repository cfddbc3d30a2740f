package rosaserver

import (
	"log/slog"

	"github.com/sliverarmory/rosaserver/collab"
	"github.com/sliverarmory/rosaserver/collab/httpclient"
	"github.com/sliverarmory/rosaserver/collab/imaging"
	"github.com/sliverarmory/rosaserver/collab/watch"
	"github.com/sliverarmory/rosaserver/collab/worker"
	"github.com/sliverarmory/rosaserver/config"
)

// Collab returns the helper set scripts get in a real server: images
// decoded in process, inotify watchers, workers run as
// `<cfg.WorkerBinary> worker <script>`, in-process workers and a plain
// HTTP client.
func Collab(cfg *config.Config, logger *slog.Logger) collab.Set {
	return collab.Set{
		LoadImage: func(path string) (collab.Image, error) {
			img, err := imaging.Load(path)
			if err != nil {
				return nil, err
			}
			return img, nil
		},
		BlankImage: func(width, height, channels int) (collab.Image, error) {
			img, err := imaging.Blank(width, height, channels)
			if err != nil {
				return nil, err
			}
			return img, nil
		},
		Watch: func() (collab.FileWatcher, error) {
			w, err := watch.New()
			if err != nil {
				return nil, err
			}
			return w, nil
		},
		Spawn: func(script string, args ...string) (collab.ChildProcess, error) {
			p, err := worker.Spawn(cfg.WorkerBinary, script, logger, args...)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		StartWorker: func(script string) (collab.Worker, error) {
			return worker.Start(script, logger), nil
		},
		HTTP: httpclient.New(cfg.HTTPTimeout),
	}
}

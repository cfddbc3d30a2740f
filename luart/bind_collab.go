package luart

import (
	"context"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/collab"
)

const (
	imageType   = "rosa.Image"
	watcherType = "rosa.FileWatcher"
	childType   = "rosa.ChildProcess"
	workerType  = "rosa.Worker"
)

// imageBox lets a script allocate an Image before loading pixels into it.
type imageBox struct {
	img collab.Image
}

type watcherBox struct {
	w collab.FileWatcher
}

type childBox struct {
	p collab.ChildProcess
}

type workerBox struct {
	w collab.Worker
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (r *Runtime) registerCollab(state *lua.State) {
	r.registerImage(state)
	r.registerWatcher(state)
	r.registerChild(state)
	r.registerWorker(state)
	r.registerHTTP(state)
}

// methodTable registers a metatable whose __index serves props first and
// then methods.
func methodTable(state *lua.State, name string, props map[string]lua.Function, methods map[string]lua.Function) {
	lua.NewMetaTable(state, name)
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: func(state *lua.State) int {
			key := lua.CheckString(state, 2)
			if p, ok := props[key]; ok {
				return p(state)
			}
			if m, ok := methods[key]; ok {
				state.PushGoFunction(m)
				return 1
			}
			state.PushNil()
			return 1
		}},
	}, 0)
	state.Pop(1)
}

func checkImage(state *lua.State) *imageBox {
	return lua.CheckUserData(state, 1, imageType).(*imageBox)
}

func loadedImage(state *lua.State) collab.Image {
	b := checkImage(state)
	if b.img == nil {
		lua.Errorf(state, "image not loaded")
	}
	return b.img
}

func (r *Runtime) registerImage(state *lua.State) {
	dim := func(get func(collab.Image) int) lua.Function {
		return func(state *lua.State) int {
			b := checkImage(state)
			if b.img == nil {
				state.PushInteger(0)
			} else {
				state.PushInteger(get(b.img))
			}
			return 1
		}
	}
	pixel := func(withAlpha bool) lua.Function {
		return func(state *lua.State) int {
			img := loadedImage(state)
			red, green, blue, alpha, err := img.At(lua.CheckInteger(state, 2), lua.CheckInteger(state, 3))
			if err != nil {
				return raise(state, err)
			}
			state.PushInteger(int(red))
			state.PushInteger(int(green))
			state.PushInteger(int(blue))
			if withAlpha {
				state.PushInteger(int(alpha))
				return 4
			}
			return 3
		}
	}

	methodTable(state, imageType,
		map[string]lua.Function{
			"width":       dim(collab.Image.Width),
			"height":      dim(collab.Image.Height),
			"numChannels": dim(collab.Image.Channels),
		},
		map[string]lua.Function{
			"free": func(state *lua.State) int {
				checkImage(state).img = nil
				return 0
			},
			"loadFromFile": func(state *lua.State) int {
				b := checkImage(state)
				path := lua.CheckString(state, 2)
				if r.opts.Collab.LoadImage == nil {
					return raise(state, collab.ErrUnavailable)
				}
				img, err := r.opts.Collab.LoadImage(path)
				if err != nil {
					return raise(state, err)
				}
				b.img = img
				return 0
			},
			"loadBlank": func(state *lua.State) int {
				b := checkImage(state)
				w, h := lua.CheckInteger(state, 2), lua.CheckInteger(state, 3)
				channels := lua.OptInteger(state, 4, 4)
				if r.opts.Collab.BlankImage == nil {
					return raise(state, collab.ErrUnavailable)
				}
				img, err := r.opts.Collab.BlankImage(w, h, channels)
				if err != nil {
					return raise(state, err)
				}
				b.img = img
				return 0
			},
			"getRGB":  pixel(false),
			"getRGBA": pixel(true),
			"setPixel": func(state *lua.State) int {
				img := loadedImage(state)
				x, y := lua.CheckInteger(state, 2), lua.CheckInteger(state, 3)
				channel := func(i int) uint8 { return uint8(lua.CheckInteger(state, i)) }
				alpha := uint8(lua.OptInteger(state, 7, 255))
				if err := img.Set(x, y, channel(4), channel(5), channel(6), alpha); err != nil {
					return raise(state, err)
				}
				return 0
			},
			"getPNG": func(state *lua.State) int {
				data, err := loadedImage(state).PNG()
				if err != nil {
					return raise(state, err)
				}
				state.PushString(string(data))
				return 1
			},
		})

	state.Register("Image", func(state *lua.State) int {
		state.PushUserData(&imageBox{})
		lua.SetMetaTableNamed(state, imageType)
		return 1
	})
}

func checkWatcher(state *lua.State) collab.FileWatcher {
	return lua.CheckUserData(state, 1, watcherType).(*watcherBox).w
}

func (r *Runtime) registerWatcher(state *lua.State) {
	methodTable(state, watcherType, nil, map[string]lua.Function{
		"addWatch": func(state *lua.State) int {
			w := checkWatcher(state)
			wd, err := w.Add(lua.CheckString(state, 2), uint32(lua.CheckInteger(state, 3)))
			if err != nil {
				return raise(state, err)
			}
			state.PushInteger(wd)
			return 1
		},
		"removeWatch": func(state *lua.State) int {
			w := checkWatcher(state)
			state.PushBoolean(w.Remove(lua.CheckInteger(state, 2)) == nil)
			return 1
		},
		"receiveEvent": func(state *lua.State) int {
			ev, ok, err := checkWatcher(state).Receive()
			if err != nil {
				return raise(state, err)
			}
			if !ok {
				state.PushNil()
				return 1
			}
			state.CreateTable(0, 3)
			state.PushInteger(ev.Descriptor)
			state.SetField(-2, "descriptor")
			state.PushNumber(float64(ev.Mask))
			state.SetField(-2, "mask")
			state.PushString(ev.Name)
			state.SetField(-2, "name")
			return 1
		},
	})

	state.Register("FileWatcher", func(state *lua.State) int {
		if r.opts.Collab.Watch == nil {
			return raise(state, collab.ErrUnavailable)
		}
		w, err := r.opts.Collab.Watch()
		if err != nil {
			return raise(state, err)
		}
		r.track(w)
		state.PushUserData(&watcherBox{w: w})
		lua.SetMetaTableNamed(state, watcherType)
		return 1
	})
}

func checkChild(state *lua.State) collab.ChildProcess {
	return lua.CheckUserData(state, 1, childType).(*childBox).p
}

func (r *Runtime) registerChild(state *lua.State) {
	methodTable(state, childType, nil, map[string]lua.Function{
		"sendMessage": func(state *lua.State) int {
			if err := checkChild(state).Send(lua.CheckString(state, 2)); err != nil {
				return raise(state, err)
			}
			return 0
		},
		"receiveMessage": func(state *lua.State) int {
			msg, ok, err := checkChild(state).Receive()
			if err != nil {
				return raise(state, err)
			}
			if !ok {
				state.PushNil()
				return 1
			}
			state.PushString(msg)
			return 1
		},
		"isRunning": func(state *lua.State) int {
			state.PushBoolean(checkChild(state).Running())
			return 1
		},
		"terminate": func(state *lua.State) int {
			if err := checkChild(state).Terminate(); err != nil {
				return raise(state, err)
			}
			return 0
		},
	})

	state.Register("ChildProcess", func(state *lua.State) int {
		script := lua.CheckString(state, 1)
		var args []string
		for i := 2; i <= state.Top(); i++ {
			args = append(args, lua.CheckString(state, i))
		}
		if r.opts.Collab.Spawn == nil {
			return raise(state, collab.ErrUnavailable)
		}
		p, err := r.opts.Collab.Spawn(script, args...)
		if err != nil {
			return raise(state, err)
		}
		r.track(closerFunc(p.Terminate))
		state.PushUserData(&childBox{p: p})
		lua.SetMetaTableNamed(state, childType)
		return 1
	})
}

func checkWorker(state *lua.State) collab.Worker {
	return lua.CheckUserData(state, 1, workerType).(*workerBox).w
}

// Worker(script) runs script on its own Lua state in this process. It is
// stopped with the state that created it.
func (r *Runtime) registerWorker(state *lua.State) {
	methodTable(state, workerType, nil, map[string]lua.Function{
		"sendMessage": func(state *lua.State) int {
			if err := checkWorker(state).Send(lua.CheckString(state, 2)); err != nil {
				return raise(state, err)
			}
			return 0
		},
		"receiveMessage": func(state *lua.State) int {
			msg, ok, err := checkWorker(state).Receive()
			if err != nil {
				return raise(state, err)
			}
			if !ok {
				state.PushNil()
				return 1
			}
			state.PushString(msg)
			return 1
		},
		"stop": func(state *lua.State) int {
			if err := checkWorker(state).Stop(); err != nil {
				return raise(state, err)
			}
			return 0
		},
	})

	state.Register("Worker", func(state *lua.State) int {
		script := lua.CheckString(state, 1)
		if r.opts.Collab.StartWorker == nil {
			return raise(state, collab.ErrUnavailable)
		}
		w, err := r.opts.Collab.StartWorker(script)
		if err != nil {
			return raise(state, err)
		}
		r.track(closerFunc(w.Stop))
		state.PushUserData(&workerBox{w: w})
		lua.SetMetaTableNamed(state, workerType)
		return 1
	})
}

func (r *Runtime) registerHTTP(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "getSync", Function: func(state *lua.State) int {
			url := lua.CheckString(state, 1) + lua.CheckString(state, 2)
			headers := stringTable(state, 3)
			return r.httpCall(state, func(ctx context.Context, c collab.HTTPClient) (*collab.HTTPResponse, error) {
				return c.Get(ctx, url, headers)
			})
		}},
		{Name: "postSync", Function: func(state *lua.State) int {
			url := lua.CheckString(state, 1) + lua.CheckString(state, 2)
			headers := stringTable(state, 3)
			body := lua.CheckString(state, 4)
			contentType := lua.OptString(state, 5, "application/octet-stream")
			return r.httpCall(state, func(ctx context.Context, c collab.HTTPClient) (*collab.HTTPResponse, error) {
				return c.Post(ctx, url, headers, []byte(body), contentType)
			})
		}},
	}, 0)
	state.SetGlobal("http")
}

// httpCall pushes {status, body, headers}, or nil when the request failed.
func (r *Runtime) httpCall(state *lua.State, do func(context.Context, collab.HTTPClient) (*collab.HTTPResponse, error)) int {
	if r.opts.Collab.HTTP == nil {
		return raise(state, collab.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.HTTPTimeout)
	defer cancel()

	resp, err := do(ctx, r.opts.Collab.HTTP)
	if err != nil {
		r.log.Warn("http request failed", "err", err)
		state.PushNil()
		return 1
	}
	state.CreateTable(0, 3)
	state.PushInteger(resp.Status)
	state.SetField(-2, "status")
	state.PushString(string(resp.Body))
	state.SetField(-2, "body")
	state.CreateTable(0, len(resp.Headers))
	for k, v := range resp.Headers {
		state.PushString(v)
		state.SetField(-2, k)
	}
	state.SetField(-2, "headers")
	return 1
}

// stringTable reads an optional table of string keys and values.
func stringTable(state *lua.State, index int) map[string]string {
	out := map[string]string{}
	if state.IsNoneOrNil(index) {
		return out
	}
	lua.CheckType(state, index, lua.TypeTable)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			k, _ := state.ToString(-2)
			v, _ := lua.ToStringMeta(state, -1)
			state.Pop(1)
			out[k] = v
		}
		state.Pop(1)
	}
	return out
}

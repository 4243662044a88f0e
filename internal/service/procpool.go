package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"

	"ipintel/internal/model"
	"ipintel/internal/utils"
)

// WorkerEnv marks a child process as a query worker. The server
// entrypoint checks it before starting the web stack.
const WorkerEnv = "IPINTEL_WORKER"

// workerTask and workerReply form the line-delimited JSON protocol
// between the pool and a worker process.
type workerTask struct {
	Index  int    `json:"index"`
	IP     string `json:"ip"`
	Proxy  string `json:"proxy,omitempty"`
	Method string `json:"method,omitempty"`
}

type workerReply struct {
	Index  int               `json:"index"`
	Result model.QueryResult `json:"result"`
}

// workerProc is one worker execution unit. The real implementation
// wraps a child process; tests substitute an in-memory pipe pair.
type workerProc interface {
	Send(workerTask) error
	Recv() (workerReply, error)
	Close() error
}

type spawnFunc func() (workerProc, error)

// runProcessPool executes the batch on isolated worker processes, one
// task in flight per worker. When no worker can be spawned at all the
// pool degrades to the thread strategy; spawning from within an
// already-forked context is not safe on every platform and must not
// crash the batch.
func (e *Engine) runProcessPool(ctx context.Context, ips []string, proxy string, observe func(int, model.QueryResult)) []model.QueryResult {
	n := min(e.cfg.MaxWorkers, len(ips))

	procs := make([]workerProc, 0, n)
	for i := 0; i < n; i++ {
		p, err := e.spawn()
		if err != nil {
			if len(procs) == 0 {
				utils.Log.Warn("process pool unavailable, falling back to thread mode",
					utils.Field("error", err.Error()))
				return e.runThreaded(ctx, ips, proxy, observe)
			}
			utils.Log.Warn("spawned fewer workers than requested",
				utils.Field("want", n), utils.Field("got", len(procs)))
			break
		}
		procs = append(procs, p)
	}

	results := make([]model.QueryResult, len(ips))
	tasks := make(chan workerTask)
	done := make(chan struct{}, len(procs))

	for _, p := range procs {
		go func(p workerProc) {
			defer func() { done <- struct{}{} }()
			for t := range tasks {
				reply, err := roundTripTask(p, t)
				if err != nil {
					// The worker is gone; fail this item only. Remaining
					// tasks go to the surviving workers.
					reply = workerReply{Index: t.Index, Result: model.ErrorResult(t.IP, model.ReasonUnknown)}
				}
				if reply.Index < 0 || reply.Index >= len(results) {
					reply.Index = t.Index
					reply.Result = model.ErrorResult(t.IP, model.ReasonUnknown)
				}
				results[reply.Index] = reply.Result
				if observe != nil {
					observe(reply.Index, reply.Result)
				}
			}
		}(p)
	}

	for i, ip := range ips {
		tasks <- workerTask{Index: i, IP: ip, Proxy: proxy, Method: http.MethodGet}
	}
	close(tasks)

	for range procs {
		<-done
	}
	for _, p := range procs {
		_ = p.Close()
	}
	return results
}

func roundTripTask(p workerProc, t workerTask) (workerReply, error) {
	if err := p.Send(t); err != nil {
		return workerReply{}, err
	}
	return p.Recv()
}

// RunWorker is the worker-process main loop: it reads tasks from r,
// runs each through a private engine, and writes replies to w. It
// returns when r is exhausted.
func RunWorker(r io.Reader, w io.Writer, cfg Config) {
	engine := NewEngine(cfg)
	defer engine.Shutdown()

	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		var task workerTask
		if err := dec.Decode(&task); err != nil {
			return
		}
		res := engine.querySingle(context.Background(), task.IP, task.Proxy, task.Method)
		if err := enc.Encode(workerReply{Index: task.Index, Result: res}); err != nil {
			return
		}
	}
}

// execWorker wraps a spawned child process speaking the worker
// protocol over its stdin/stdout.
type execWorker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder
	dec   *json.Decoder
}

func (p *execWorker) Send(t workerTask) error { return p.enc.Encode(t) }
func (p *execWorker) Recv() (workerReply, error) {
	var reply workerReply
	err := p.dec.Decode(&reply)
	return reply, err
}

func (p *execWorker) Close() error {
	_ = p.stdin.Close()
	return p.cmd.Wait()
}

// execSpawner re-runs the current executable in worker mode, passing
// engine configuration through the environment.
func execSpawner(cfg Config) spawnFunc {
	return func() (workerProc, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}

		cmd := exec.Command(exe)
		cmd.Env = append(os.Environ(),
			WorkerEnv+"=1",
			"UPSTREAM_BASE_URL="+cfg.BaseURL,
			"PROXY_URL="+cfg.DefaultProxy,
			"QUERY_TIMEOUT_SECONDS="+strconv.Itoa(int(cfg.Timeout.Seconds())),
			"MAX_WORKERS="+strconv.Itoa(cfg.MaxWorkers),
		)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}

		return &execWorker{
			cmd:   cmd,
			stdin: stdin,
			enc:   json.NewEncoder(stdin),
			dec:   json.NewDecoder(stdout),
		}, nil
	}
}

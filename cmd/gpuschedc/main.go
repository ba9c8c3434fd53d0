// Command gpuschedc is a single-process demo harness for the gpusched
// scheduler: it loads a JSON model description, runs it through
// Schedule against in-memory device/transport/catalog stubs, and writes
// the resulting kernel sources and launch plan to an output directory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/janpfeifer/must"

	"github.com/flowmesh/gpusched"
	"github.com/flowmesh/gpusched/device"
	"github.com/flowmesh/gpusched/packer"
)

func main() {
	var (
		gpuID      = flag.Int("gpu", 0, "local GPU id")
		rank       = flag.Int("rank", 0, "this process's rank")
		worldSize  = flag.Int("world-size", 1, "total number of ranks")
		wps        = flag.Int("wps", 16, "MAX_WARPS_PER_SEQ")
		smCount    = flag.Int("sm-count", 8, "device SM count")
		warpsPerSM = flag.Int("warps-per-sm", 32, "device warps per SM")
		bytesFree  = flag.Int64("bytes-free", 1<<30, "device bytes free")
		packerKind = flag.String("packer", "default", "packer to use: default, partitioned, simple")
		version    = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("gpuschedc - gpusched demo harness v1.0.0")
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <model.json> <out-dir>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	modelPath, outDir := args[0], args[1]

	m, err := loadModel(modelPath)
	if err != nil {
		log.Fatalf("loading model: %v", err)
	}

	mgr := newLocalDevice(device.Info{SMCount: *smCount, WarpsPerSM: *warpsPerSM, BytesFree: *bytesFree})
	transport := newLocalTransport()

	cfg := gpusched.Config{
		WPS:    *wps,
		Packer: parsePackerKind(*packerKind),
	}

	sched := gpusched.NewScheduler(mgr, transport, demoCatalog{}, cfg)
	plan, err := sched.Schedule(m, *gpuID, *rank, *worldSize)
	if err != nil {
		log.Fatalf("scheduling failed: %v", err)
	}

	must.M(os.MkdirAll(outDir, 0o755))
	writeKernelSources(outDir, plan.KernelSources)
	writeLaunchPlan(outDir, plan)

	fmt.Printf("Scheduled %s -> %s (%d depths, %d kernel sources)\n",
		modelPath, outDir, sched.NumDepths(), len(plan.KernelSources))
}

func parsePackerKind(s string) packer.Kind {
	switch s {
	case "partitioned":
		return packer.KindPartitioned
	case "simple":
		return packer.KindSimple
	default:
		return packer.KindDefault
	}
}

func writeKernelSources(outDir string, sources []string) {
	for i, src := range sources {
		path := filepath.Join(outDir, fmt.Sprintf("kernel_%03d.cu", i))
		must.M(os.WriteFile(path, []byte(src), 0o644))
	}
}

// launchEntry is the JSON shape one packer.Sched is written out as: one
// entry per sequence sharing that launch, each carrying its own hash and
// the op ids it covers.
type launchEntry struct {
	Depth    int    `json:"depth"`
	SeqID    int    `json:"seq_id"`
	SeqHash  string `json:"seq_hash"`
	Warps    int    `json:"warps"`
	SMDemand int    `json:"sm_demand"`
	OpIDs    []int  `json:"op_ids"`
}

func writeLaunchPlan(outDir string, plan *gpusched.KernelPlan) {
	var entries []launchEntry
	for _, depthScheds := range plan.Launches {
		for _, sc := range depthScheds {
			for _, seq := range sc.Sequences {
				opIDs := make([]int, len(seq.Ops))
				for i, op := range seq.Ops {
					opIDs[i] = op.Op.ID
				}
				entries = append(entries, launchEntry{
					Depth:    sc.Depth,
					SeqID:    seq.ID,
					SeqHash:  seq.Hash,
					Warps:    seq.Warps,
					SMDemand: seq.SMDemand,
					OpIDs:    opIDs,
				})
			}
		}
	}
	raw := must.M1(json.MarshalIndent(entries, "", "  "))
	must.M(os.WriteFile(filepath.Join(outDir, "launch_plan.json"), raw, 0o644))

	type bufEntry struct {
		BufID  int   `json:"buf_id"`
		GPUID  int   `json:"gpu_id"`
		Offset int64 `json:"offset"`
		Bytes  int64 `json:"bytes"`
		Sid    int   `json:"sid"`
	}
	var bufs []bufEntry
	for _, bi := range plan.BufInfos {
		bufs = append(bufs, bufEntry{BufID: bi.TBuf.ID, GPUID: bi.GPUID, Offset: bi.Offset, Bytes: bi.Bytes, Sid: bi.Sid})
	}
	rawBufs := must.M1(json.MarshalIndent(bufs, "", "  "))
	must.M(os.WriteFile(filepath.Join(outDir, "buf_plan.json"), rawBufs, 0o644))
}

// Command ktop boots the demo board and prints periodic scheduler
// snapshots, the RTOS analogue of the teacher's barn server command: a
// thin flag-parsing shell around a long-running core that does the real
// work.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"rtkernel/demo"
	"rtkernel/kernel"
	"rtkernel/kernel/ktrace"
)

func main() {
	boardPath := flag.String("board", "", "YAML board config (default: built-in demo board)")
	statusInterval := flag.Duration("status-interval", 500*time.Millisecond, "Snapshot print interval")
	isrInterval := flag.Duration("isr-interval", 3*time.Second, "Simulated user-ISR-0 firing interval (0 disables)")

	traceEnabled := flag.Bool("trace", false, "Enable scheduler tracing")
	traceFilter := flag.String("trace-filter", "", "Trace filter pattern (glob, comma-separated task names)")

	flag.Parse()

	cfg := demo.BoardConfig()
	if *boardPath != "" {
		loaded, err := kernel.LoadBoardConfig(*boardPath)
		if err != nil {
			log.Fatalf("Failed to load board config: %v", err)
		}
		if err := demo.RequireCompatible(loaded); err != nil {
			log.Fatalf("Failed to load board config: %v", err)
		}
		cfg = loaded
	}

	log.Printf("rtkernel ktop")
	log.Printf("Tasks: %d  Priority classes: %d  Tick width: %d  Tick interval: %s",
		cfg.TaskCount, cfg.PriorityClasses, cfg.TickWidth, cfg.TickInterval)

	k := kernel.NewKernel(cfg)

	if *traceEnabled {
		var filters []string
		if *traceFilter != "" {
			filters = strings.Split(*traceFilter, ",")
			for i := range filters {
				filters[i] = strings.TrimSpace(filters[i])
			}
		}
		k.SetTracer(ktrace.New(true, filters, os.Stderr))
		log.Printf("Tracing enabled (filters: %v)", filters)
	}

	go printStatus(k, *statusInterval)
	if cfg.UserISR00Enabled && *isrInterval > 0 {
		go fireUserISR00(k, *isrInterval)
	}

	k.InitRTOS(demo.Setup, demo.IdleBody)
}

func printStatus(k *kernel.Kernel, interval time.Duration) {
	for range time.Tick(interval) {
		fmt.Println(demo.FormatSnapshot(k.Snapshot()))
	}
}

func fireUserISR00(k *kernel.Kernel, interval time.Duration) {
	for range time.Tick(interval) {
		k.TriggerUserISR00()
	}
}

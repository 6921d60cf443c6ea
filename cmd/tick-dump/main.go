// tick-dump 把 WAL sink 的文件按写入顺序打印成 CSV
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"tickflow.com/internal/sink"
	"tickflow.com/internal/tick"
	"tickflow.com/pkg/wal"
)

type options struct {
	path      string
	symbol    string // 空表示全部
	allowTail bool
	repair    bool
	noHeader  bool
}

func main() {
	var opt options
	flag.StringVar(&opt.path, "wal", "ticks.wal", "WAL 文件路径")
	flag.StringVar(&opt.symbol, "symbol", "", "只输出该 symbol")
	flag.BoolVar(&opt.allowTail, "allow-tail", true, "容忍末尾半条记录（进程中途被杀）")
	flag.BoolVar(&opt.repair, "repair", false, "把末尾半条记录截掉")
	flag.BoolVar(&opt.noHeader, "no-header", false, "不输出表头")
	flag.Parse()

	stats, err := dump(os.Stdout, opt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tick-dump: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "records=%d last_good_offset=%d truncated_tail=%v\n",
		stats.Records, stats.LastGoodOffset, stats.TruncatedTail)
}

func dump(out io.Writer, opt options) (wal.ReplayStats, error) {
	// Replay 把不存在的文件当成空，命令行里要明确报错
	if _, err := os.Stat(opt.path); err != nil {
		return wal.ReplayStats{}, err
	}
	w := csv.NewWriter(out)
	if !opt.noHeader {
		if err := w.Write(tick.Header()); err != nil {
			return wal.ReplayStats{}, err
		}
	}

	allowTail := opt.allowTail || opt.repair
	stats, err := sink.ReplayWAL(opt.path, allowTail, func(t tick.Tick) error {
		if opt.symbol != "" && t.Symbol != opt.symbol {
			return nil
		}
		return w.Write(t.Row())
	})
	w.Flush()
	if err != nil {
		return stats, err
	}
	if err := w.Error(); err != nil {
		return stats, err
	}

	if opt.repair && stats.TruncatedTail {
		if err := wal.TruncateTo(opt.path, stats.LastGoodOffset); err != nil {
			return stats, fmt.Errorf("repair: %w", err)
		}
	}
	return stats, nil
}

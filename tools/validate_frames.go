//go:build ignore

package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
)

// Statistics tracks decoding results
type Statistics struct {
	TotalFrames  int
	TotalFiles   int
	DecodeOK     int
	DecodeFailed int
	FrameTypes   map[protocol.FrameType]int
	BodyIDs      map[byte]int
	Failed       []FailedFrame
}

// FailedFrame stores information about a frame that did not decode
type FailedFrame struct {
	File       string
	LineNumber int
	Hex        string
	Error      string
}

// Reads appliance frames captured with --log-level debug (or by hand), one
// hex frame per line, and checks that every one decodes. Lines may carry a
// "tx:" or "rx:" prefix and spaces between bytes; '#' starts a comment.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_frames <directory-or-file>")
		fmt.Println("Example: validate_frames captures/")
		fmt.Println("         validate_frames bedroom-20260301.hex")
		os.Exit(1)
	}

	path := os.Args[1]

	stats := Statistics{
		FrameTypes: make(map[protocol.FrameType]int),
		BodyIDs:    make(map[byte]int),
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.hex"))
		if err != nil || len(files) == 0 {
			fmt.Printf("No .hex files found in %s\n", path)
			os.Exit(1)
		}
	}

	fmt.Printf("=== Appliance Frame Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
	if stats.DecodeFailed > 0 {
		os.Exit(1)
	}
}

func cleanLine(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"tx:", "rx:", "TX:", "RX:"} {
		line = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(strings.Fields(line), "")
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading file %s: %v\n", filename, err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := cleanLine(scanner.Text())
		if line == "" {
			continue
		}
		stats.TotalFrames++

		fail := func(err error) {
			stats.DecodeFailed++
			stats.Failed = append(stats.Failed, FailedFrame{File: filename, LineNumber: lineNum, Hex: line, Error: err.Error()})
		}

		data, err := hex.DecodeString(line)
		if err != nil {
			fail(fmt.Errorf("hex decode error: %w", err))
			continue
		}

		frame, err := protocol.ParseFrame(data)
		if err != nil {
			fail(fmt.Errorf("frame parse error: %w", err))
			continue
		}
		stats.FrameTypes[frame.Type]++
		if len(frame.Body) > 0 {
			stats.BodyIDs[frame.Body[0]]++
		}

		switch {
		case frame.Type == protocol.FrameTypeSet && len(frame.Body) > 0 && frame.Body[0] == protocol.CommandSetState:
			state, opts, err := protocol.DecodeSetCommand(data)
			if err != nil {
				fail(fmt.Errorf("set command: %w", err))
				continue
			}
			fmt.Printf("%s:%d set    %s beep=%t\n", filepath.Base(filename), lineNum, state, opts.Beep)

		case len(frame.Body) > 0 && frame.Body[0] == protocol.ResponseState:
			state, err := protocol.DecodeStatus(data)
			if err != nil {
				fail(fmt.Errorf("status: %w", err))
				continue
			}
			fmt.Printf("%s:%d status %s\n", filepath.Base(filename), lineNum, state)
		}

		stats.DecodeOK++
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file %s: %v\n", filename, err)
	}
}

func printStatistics(stats *Statistics) {
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Files:   %d\n", stats.TotalFiles)
	fmt.Printf("Frames:  %d\n", stats.TotalFrames)
	fmt.Printf("Decoded: %d\n", stats.DecodeOK)
	fmt.Printf("Failed:  %d\n", stats.DecodeFailed)

	fmt.Printf("\nFrame types:\n")
	types := make([]int, 0, len(stats.FrameTypes))
	for t := range stats.FrameTypes {
		types = append(types, int(t))
	}
	sort.Ints(types)
	for _, t := range types {
		fmt.Printf("  %-8s %d\n", protocol.FrameType(t), stats.FrameTypes[protocol.FrameType(t)])
	}

	fmt.Printf("\nBody identifiers:\n")
	ids := make([]int, 0, len(stats.BodyIDs))
	for id := range stats.BodyIDs {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("  0x%02x     %d\n", id, stats.BodyIDs[byte(id)])
	}

	if len(stats.Failed) > 0 {
		fmt.Printf("\nFailures:\n")
		for _, f := range stats.Failed {
			fmt.Printf("  %s:%d: %s\n    %s\n", f.File, f.LineNumber, f.Error, f.Hex)
		}
	}
}

// Package main реализует cusipctl — утилиту пакетной проверки кодов.
// Коды читаются по одному на строку из файла или stdin и проверяются
// либо через HTTP API сервиса, либо локально без сервера.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmeshcher/cusip-system/internal/client"
	"github.com/mmeshcher/cusip-system/internal/validation"
)

const (
	exitOK    = 0
	exitFound = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("a", "localhost:8080", "service address")
	file := flag.String("f", "", "input file with one code per line (default stdin)")
	format := flag.String("format", "table", "output format: table or csv")
	batchSize := flag.Int("batch", 100, "codes per request in remote mode")
	timeout := flag.Duration("t", 10*time.Second, "request timeout")
	local := flag.Bool("local", false, "verify in-process without a server")
	flag.Parse()

	if *format != "table" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "unknown format: %s\n", *format)
		return exitUsage
	}
	if *batchSize <= 0 {
		fmt.Fprintln(os.Stderr, "batch size must be positive")
		return exitUsage
	}

	codes, err := readCodes(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read codes: %v\n", err)
		return exitUsage
	}
	if len(codes) == 0 {
		fmt.Fprintln(os.Stderr, "no codes to verify")
		return exitUsage
	}

	var results []client.CodeResult
	if *local {
		results = verifyLocal(codes)
	} else {
		results, err = verifyRemote(context.Background(), codes, *addr, *batchSize, *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "verify: %v\n", err)
			return exitUsage
		}
	}

	switch *format {
	case "csv":
		err = writeCSV(os.Stdout, results)
	default:
		err = writeTable(os.Stdout, results)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return exitUsage
	}

	for _, res := range results {
		if !res.Valid {
			return exitFound
		}
	}
	return exitOK
}

// readCodes читает коды по одному на строку. Пустые строки пропускаются,
// символ # — часть алфавита кодов и не считается комментарием.
func readCodes(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var codes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		codes = append(codes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return codes, nil
}

func verifyLocal(codes []string) []client.CodeResult {
	results := make([]client.CodeResult, 0, len(codes))
	for _, code := range codes {
		results = append(results, toCodeResult(code, validation.ValidateCUSIP(code)))
	}
	return results
}

func toCodeResult(code string, res validation.Result) client.CodeResult {
	out := client.CodeResult{
		Code:          strings.TrimSpace(code),
		Valid:         res.Valid,
		Error:         string(res.ErrorKind),
		ErrorPosition: res.Position,
	}

	if res.HasChecksum() {
		sum := res.Sum
		calc := res.CalculatedDigit
		out.Checksum = &sum
		out.CalculatedCheckDigit = &calc
	}

	if res.HasProvidedDigit() {
		provided := res.ProvidedDigit
		out.ProvidedCheckDigit = &provided
	}

	return out
}

func verifyRemote(ctx context.Context, codes []string, addr string, batchSize int, timeout time.Duration) ([]client.CodeResult, error) {
	c := client.NewClient(addr, timeout)

	results := make([]client.CodeResult, 0, len(codes))
	for start := 0; start < len(codes); start += batchSize {
		end := start + batchSize
		if end > len(codes) {
			end = len(codes)
		}

		batch, err := c.VerifyBatch(ctx, codes[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start+1, end, err)
		}
		results = append(results, batch...)
	}

	return results, nil
}

func writeTable(w io.Writer, results []client.CodeResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "CODE\tVALID\tERROR\tPOS\tPROVIDED\tCALCULATED\tCHECKSUM")
	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\t%s\n",
			res.Code,
			res.Valid,
			res.Error,
			formatInt(res.ErrorPosition),
			formatIntPtr(res.ProvidedCheckDigit),
			formatIntPtr(res.CalculatedCheckDigit),
			formatIntPtr(res.Checksum),
		)
	}

	return tw.Flush()
}

func writeCSV(w io.Writer, results []client.CodeResult) error {
	cw := csv.NewWriter(w)

	header := []string{"code", "valid", "error", "error_position", "provided_check_digit", "calculated_check_digit", "checksum"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, res := range results {
		record := []string{
			res.Code,
			strconv.FormatBool(res.Valid),
			res.Error,
			formatInt(res.ErrorPosition),
			formatIntPtr(res.ProvidedCheckDigit),
			formatIntPtr(res.CalculatedCheckDigit),
			formatIntPtr(res.Checksum),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

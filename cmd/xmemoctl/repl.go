package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// replService 返回从 in 读取命令的交互会话
func replService(in io.Reader, out, errOut io.Writer) frontend {
	return func(ctx context.Context, s *session) error {
		s.out, s.errOut = out, errOut
		fmt.Fprintln(out, "xmemoctl 交互模式")
		fmt.Fprintln(out, "输入 'help' 查看可用命令，'quit' 或 'exit' 退出")
		fmt.Fprintln(out)
		return runREPL(ctx, s, in)
	}
}

// startInputReader 启动输入读取 goroutine。
// inputCh 无缓冲，发送受 ctx 保护，ctx 取消后 goroutine 不会阻塞在发送端。
func startInputReader(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	inputCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
		close(inputCh)
	}()

	return inputCh, errCh
}

// runREPL 运行 REPL 循环，ctx 取消或输入结束时返回。
func runREPL(ctx context.Context, s *session, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inputCh, errCh := startInputReader(ctx, in)

	for {
		fmt.Fprint(s.out, "xmemo> ")

		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out, "\n再见!")
			return nil
		case err := <-errCh:
			return fmt.Errorf("读取输入错误: %w", err)
		case line, ok := <-inputCh:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			if processLine(ctx, s, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// processLine 处理单行输入，返回 true 表示应该退出。
func processLine(ctx context.Context, s *session, line string) bool {
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	if line == "quit" || line == "exit" {
		fmt.Fprintln(s.out, "再见!")
		return true
	}

	parts := parseCommandLine(line)
	if len(parts) == 0 {
		return false
	}
	output, err := s.execute(ctx, parts[0], parts[1:])
	if err != nil {
		fmt.Fprintf(s.errOut, "错误: %v\n", err)
		return false
	}
	if output != "" {
		fmt.Fprintln(s.out, output)
	}
	return false
}

// parseCommandLine 解析命令行，支持引号和反斜杠转义，仅以空格分词。
func parseCommandLine(line string) []string {
	var (
		parts     []string
		current   strings.Builder
		inQuote   bool
		quoteChar rune
		escaped   bool
	)

	for _, r := range line {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}

		switch {
		case (r == '"' || r == '\'') && !inQuote:
			inQuote = true
			quoteChar = r
		case r == quoteChar && inQuote:
			inQuote = false
			quoteChar = 0
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

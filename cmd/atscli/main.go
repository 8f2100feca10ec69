// atscli 在本地对简历文件或标准输入中的文本评分，输出 AnalysisResult JSON。
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/parser"
	"resume-ats-go/internal/processor"
	"resume-ats-go/internal/scoring"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"
)

var (
	configPath  = pflag.StringP("config", "c", "", "配置文件路径，为空时使用默认配置")
	topK        = pflag.IntP("top-k", "k", 0, "返回的岗位推荐数量 (1-20)，0 使用配置默认值")
	pretty      = pflag.BoolP("pretty", "p", false, "缩进输出 JSON")
	extractOnly = pflag.Bool("extract-only", false, "只输出提取的文本，不评分")
	maxLen      = pflag.Int("max-len", -1, "--extract-only 时显示的最大字符数，-1 显示全部")
	timeout     = pflag.Duration("timeout", 30*time.Second, "整体超时")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "用法: atscli [flags] <file|->\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	// 日志写 stderr，stdout 只保留结果
	if _, err := logger.Init(logger.Config{Level: "warn", Format: "pretty", Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(pflag.Arg(0), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(input string, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	engineOpts := []scoring.EngineOption{
		scoring.WithEarlyPositionThreshold(cfg.Scoring.EarlyPositionThreshold),
		scoring.WithTopK(cfg.Scoring.DefaultTopK),
	}
	if cfg.Scoring.TaxonomyFile != "" {
		taxonomy, err := scoring.LoadTaxonomy(cfg.Scoring.TaxonomyFile)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, scoring.WithTaxonomy(taxonomy))
	}

	registry, err := parser.NewRegistry(ctx)
	if err != nil {
		return fmt.Errorf("创建文本提取器失败: %w", err)
	}

	analyzer, err := processor.NewResumeAnalyzer(
		[]processor.ComponentOpt{
			processor.WithcompExtractor(registry),
			processor.WithcompScorer(scoring.NewEngine(engineOpts...)),
		},
		[]processor.SettingOpt{
			processor.WithsetMaxFileSize(cfg.Upload.MaxFileSizeBytes()),
			processor.WithsetMaxTopK(cfg.Scoring.MaxTopK),
		},
	)
	if err != nil {
		return err
	}

	if input == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("读取标准输入失败: %w", err)
		}
		if *extractOnly {
			return printText(stdout, string(data))
		}
		result, err := analyzer.AnalyzeText(ctx, string(data), *topK)
		if err != nil {
			return err
		}
		return printJSON(stdout, result)
	}

	absPath, err := filepath.Abs(input)
	if err != nil {
		return fmt.Errorf("无法获取文件的绝对路径: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("无法读取文件 %s: %w", absPath, err)
	}

	if *extractOnly {
		text, err := registry.Extract(ctx, filepath.Base(absPath), data)
		if err != nil {
			return err
		}
		return printText(stdout, text)
	}

	result, err := analyzer.AnalyzeDocument(ctx, processor.Upload{
		Filename: filepath.Base(absPath),
		Data:     data,
		TopK:     *topK,
	})
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfigFromFileOnly(path)
}

func printText(w io.Writer, text string) error {
	if *maxLen >= 0 && len([]rune(text)) > *maxLen {
		text = string([]rune(text)[:*maxLen]) + "..."
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	var (
		out []byte
		err error
	)
	if *pretty {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

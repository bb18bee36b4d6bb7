// Command speechtester synthesizes one line of text against the configured
// Volcengine TTS service and writes the MP3 to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/analysis/emotion"
	"github.com/zhouzirui/z-coach/internal/config"
	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/service/speech"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("配置加载失败")
	}
	cfg.Log.Level = "debug"
	logger := logging.New(cfg.Log)
	if envErr != nil {
		logger.WithError(envErr).Warn("无法加载 .env，改用系统环境变量")
	}

	if !cfg.Speech.Enabled {
		logger.Fatal("语音服务未启用，请先在环境变量中配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	text := flag.String("text", "", "TTS 输入文本")
	userText := flag.String("user", "", "可选：用户原话，用于推断语气")
	outputPath := flag.String("out", "", "输出音频文件路径 (默认 tts_<时间>.mp3)")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的音色")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		logger.Fatal("请通过 -text 指定要合成的文本")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}
	path := *outputPath
	if path == "" {
		path = fmt.Sprintf("tts_%s.mp3", time.Now().Format("20060102_150405"))
	}

	out, err := os.Create(path)
	if err != nil {
		logger.WithError(err).Fatal("无法创建输出文件")
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tone := emotion.Analyze(*userText, *text)
	start := time.Now()
	n, err := speech.NewVolcengineTTS(cfg.Speech, logger).Synthesize(ctx, speech.Request{
		Text:      *text,
		Voice:     *voice,
		SessionID: sessionID,
		Tone:      tone,
	}, out)
	if err != nil {
		logger.WithError(err).WithField("bytes", n).Fatal("TTS 调用失败")
	}

	logger.WithFields(logrus.Fields{
		"file":     path,
		"bytes":    n,
		"emotion":  tone.Emotion,
		"duration": time.Since(start).String(),
	}).Info("TTS 成功")
}

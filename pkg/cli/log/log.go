/* Copyright 2025 Fieldsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package log prints agent messages to the console or, for the daemon,
// to a rotating log file
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	debugEnvName  = "FIELDSYNC_DEBUG"
	debugEnvValue = "1"
)

var (
	// ColorRed is a red foreground color
	ColorRed = color.New(color.FgRed)
	// ColorGreen is a green foreground color
	ColorGreen = color.New(color.FgGreen)
	// ColorYellow is a yellow foreground color
	ColorYellow = color.New(color.FgYellow)
	// ColorBlue is a blue foreground color
	ColorBlue = color.New(color.FgBlue)
	// ColorGray is a gray foreground color
	ColorGray = color.New(color.FgHiBlack)
)

var indent = "  "

var (
	mu  sync.Mutex
	out io.Writer = color.Output
)

func write(s string) {
	mu.Lock()
	defer mu.Unlock()

	fmt.Fprint(out, s)
}

// FileOptions configures the rotating log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ToFile sends all subsequent output to a rotating log file in addition to the
// console. Colors are turned off because the file is read by tools, not a
// terminal. The returned closer releases the file.
func ToFile(o FileOptions) io.Closer {
	lj := &lumberjack.Logger{
		Filename:   o.Path,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}

	mu.Lock()
	defer mu.Unlock()

	color.NoColor = true
	out = io.MultiWriter(color.Output, lj)

	return lj
}

// SetOutput replaces the destination of log messages
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	out = w
}

// Info prints information
func Info(msg string) {
	write(fmt.Sprintf("%s%s %s", indent, ColorBlue.Sprint("•"), msg))
}

// Infof prints information with optional format verbs
func Infof(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s %s", indent, ColorBlue.Sprint("•"), fmt.Sprintf(msg, v...)))
}

// Success prints a success message
func Success(msg string) {
	write(fmt.Sprintf("%s%s %s", indent, ColorGreen.Sprint("✔"), msg))
}

// Successf prints a success message with optional format verbs
func Successf(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s %s", indent, ColorGreen.Sprint("✔"), fmt.Sprintf(msg, v...)))
}

// Plain prints a plain message without any prefix symbol
func Plain(msg string) {
	write(fmt.Sprintf("%s%s", indent, msg))
}

// Plainf prints a plain message without any prefix symbol. It takes optional format verbs.
func Plainf(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s", indent, fmt.Sprintf(msg, v...)))
}

// Warnf prints a warning message with optional format verbs
func Warnf(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s %s", indent, ColorYellow.Sprint("•"), fmt.Sprintf(msg, v...)))
}

// Error prints an error message
func Error(msg string) {
	write(fmt.Sprintf("%s%s %s", indent, ColorRed.Sprint("⨯"), msg))
}

// Errorf prints an error message with optional format verbs
func Errorf(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s %s", indent, ColorRed.Sprint("⨯"), fmt.Sprintf(msg, v...)))
}

// Printf prints an normal message
func Printf(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s %s", indent, ColorGray.Sprint("•"), fmt.Sprintf(msg, v...)))
}

// isDebug returns true if debug mode is enabled
func isDebug() bool {
	return os.Getenv(debugEnvName) == debugEnvValue
}

// Debug prints to the console if FIELDSYNC_DEBUG is set
func Debug(msg string, v ...interface{}) {
	if isDebug() {
		write(fmt.Sprintf("%s %s", ColorGray.Sprint("DEBUG:"), fmt.Sprintf(msg, v...)))
	}
}

// Askf prints a question with optional format verbs
func Askf(msg string, v ...interface{}) {
	write(fmt.Sprintf("%s%s %s: ", indent, ColorGreen.Sprint("[?]"), fmt.Sprintf(msg, v...)))
}

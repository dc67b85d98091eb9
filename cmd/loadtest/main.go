// Command loadtest drives N synthetic speakers against a running relay
// instance over real websocket connections, reporting throughput and
// goroutine pressure the way the teacher's in-process benchmarks did.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Results mirrors one load-test run's summary statistics.
type Results struct {
	TestName       string
	Duration       time.Duration
	ChunksSent     int64
	MessagesRecv   int64
	ConnectErrors  int64
	GoroutineCount int
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "relay websocket base address")
	room := flag.String("room", "loadtest-room", "room id to join")
	speakers := flag.Int("speakers", 10, "number of synthetic speakers")
	duration := flag.Duration("duration", 10*time.Second, "how long to run")
	chunkInterval := flag.Duration("chunk-interval", 100*time.Millisecond, "audio chunk send interval per speaker")
	flag.Parse()

	fmt.Println("VoxBridge Relay - Load Test")
	fmt.Println(strings.Repeat("=", 60))

	result := runLoadTest(*addr, *room, *speakers, *duration, *chunkInterval)
	printSummary(result)
}

func runLoadTest(addr, roomID string, speakerCount int, dur, chunkInterval time.Duration) Results {
	var chunksSent, messagesRecv, connectErrors int64

	var wg sync.WaitGroup
	stop := make(chan struct{})

	start := time.Now()
	for i := 0; i < speakerCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			runSpeaker(addr, roomID, fmt.Sprintf("loadtest-speaker-%d", idx), chunkInterval, stop, &chunksSent, &messagesRecv, &connectErrors)
		}(i)
	}

	time.Sleep(dur)
	close(stop)
	wg.Wait()

	return Results{
		TestName:       "Synthetic speaker fan-out",
		Duration:       time.Since(start),
		ChunksSent:     atomic.LoadInt64(&chunksSent),
		MessagesRecv:   atomic.LoadInt64(&messagesRecv),
		ConnectErrors:  atomic.LoadInt64(&connectErrors),
		GoroutineCount: runtime.NumGoroutine(),
	}
}

func runSpeaker(addr, roomID, userID string, chunkInterval time.Duration, stop <-chan struct{}, chunksSent, messagesRecv, connectErrors *int64) {
	u, err := url.Parse(addr)
	if err != nil {
		atomic.AddInt64(connectErrors, 1)
		return
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("room_id", roomID)
	q.Set("user_id", userID)
	q.Set("username", userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(connectErrors, 1)
		return
	}
	defer conn.Close()

	init := map[string]interface{}{
		"type":                  "init_settings",
		"input_language":        "en",
		"output_language":       "auto",
		"speaks_languages":      []string{"en"},
		"understands_languages": []string{"en", "es"},
	}
	if data, err := json.Marshal(init); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			atomic.AddInt64(messagesRecv, 1)
		}
	}()

	chunk := syntheticChunk()
	ticker := time.NewTicker(chunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			audioMsg := map[string]interface{}{
				"type":       "audio_chunk",
				"audio_data": chunk,
			}
			data, err := json.Marshal(audioMsg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			atomic.AddInt64(chunksSent, 1)
		}
	}
}

// syntheticChunk returns a base64-encoded 100ms burst of mid-amplitude s16le
// PCM at 16kHz mono, loud enough to clear the silence threshold.
func syntheticChunk() string {
	const samples = 1600 // 100ms at 16kHz
	raw := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(3000)
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func printSummary(r Results) {
	fmt.Printf("\nTest: %s\n", r.TestName)
	fmt.Printf("  Duration:        %v\n", r.Duration)
	fmt.Printf("  Chunks sent:     %d (%.1f/s)\n", r.ChunksSent, float64(r.ChunksSent)/r.Duration.Seconds())
	fmt.Printf("  Messages recv:   %d (%.1f/s)\n", r.MessagesRecv, float64(r.MessagesRecv)/r.Duration.Seconds())
	fmt.Printf("  Connect errors:  %d\n", r.ConnectErrors)
	fmt.Printf("  Goroutines now:  %d\n", r.GoroutineCount)
	fmt.Println(strings.Repeat("=", 60))
}

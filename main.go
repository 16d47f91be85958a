package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/FreibergVlad/port-scanner/controller"
	"github.com/FreibergVlad/port-scanner/controller/report"
	"github.com/FreibergVlad/port-scanner/profile"
	"github.com/FreibergVlad/port-scanner/scanner"
)

func main() {

	// Intercept the kill signal to ensure proper shutdown of the process
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	var (
		p        *int    = flag.Int("p", 3000, "the port for the webpage and websocket")
		profPath *string = flag.String("c", "", "run the sweep described by this TOML profile and exit")
	)
	flag.Parse()

	if *profPath != "" {
		if err := runProfile(*profPath, signalChan); err != nil && err != scanner.ErrCancelled {
			log.Fatal(err.Error())
		}
		return
	}

	ctr, err := controller.CreateController()
	if err != nil {
		log.Fatal(err.Error())
	}
	// Create each of the possible websocket connections
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ws", ctr.HandleFunc)
	mux.Handle("/", http.FileServer(http.Dir("client/build")))

	defer ctr.Shutdown()

	srv := &http.Server{Addr: ":" + strconv.Itoa(*p), Handler: mux}

	log.Println("http server started on :" + strconv.Itoa(*p))

	// Go routine to listen to kill signals for this process
	go func() {
		<-signalChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	// Start and listen for websocket connections
	err = srv.ListenAndServe()
	if err != nil {
		log.Println("ListenAndServe: ", err)
	}
	log.Println("Shutting down")
}

// Sweep every target in the profile in turn, rendering one report per
// target to stdout.
func runProfile(path string, interrupt chan os.Signal) error {
	prof, err := profile.Load(path)
	if err != nil {
		return err
	}
	reporter, err := prof.Reporter()
	if err != nil {
		return err
	}

	for _, target := range prof.Targets {
		if err := runSweep(prof, reporter, target, interrupt); err != nil {
			return err
		}
	}
	return nil
}

func runSweep(prof profile.Profile, reporter report.Reporter, target string, interrupt chan os.Signal) error {
	p := prof
	if p.Technique == "syn" && p.SourceIP == "" {
		src, err := outboundIP(target)
		if err != nil {
			return err
		}
		p.SourceIP = src
	}

	ports, err := p.PortList()
	if err != nil {
		return err
	}
	engine, err := p.Engine(target)
	if err != nil {
		return err
	}
	defer engine.Close()

	// A kill signal during the sweep stops the engine, and the partial
	// report still gets rendered
	sweepDone := make(chan interface{})
	defer close(sweepDone)
	go func() {
		select {
		case <-interrupt:
			engine.Close()
		case <-sweepDone:
		}
	}()

	var (
		results     chan scanner.Result = make(chan scanner.Result, 64)
		collectDone chan interface{}    = make(chan interface{})
		collected   []scanner.Result
	)
	go func() {
		defer close(collectDone)
		for r := range results {
			collected = append(collected, r)
		}
	}()

	start := time.Now()
	scanErr := engine.Scan(ports, results)
	close(results)
	<-collectDone
	if scanErr != nil && scanErr != scanner.ErrCancelled {
		return scanErr
	}

	sweep := report.Sweep{
		Target:    target,
		Technique: p.Technique,
		Started:   start,
		Summary:   scanner.Summarize(collected, time.Since(start)),
		Results:   collected,
	}
	if err := reporter.Render(os.Stdout, sweep); err != nil {
		return err
	}
	return scanErr
}

// The kernel picks the route; a connected UDP socket reveals the local
// address without sending anything.
func outboundIP(target string) (string, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(target, "53"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// Package controller runs scan jobs on behalf of websocket clients. Every
// client speaks the same JSON opcode protocol: config retrieves the
// parameter set, scan launches a sweep, abort stops it, and the controller
// broadcasts result, done and error messages to everyone connected while a
// sweep runs.
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FreibergVlad/port-scanner/controller/config"
	"github.com/FreibergVlad/port-scanner/controller/report"
	"github.com/FreibergVlad/port-scanner/scanner"
	"github.com/FreibergVlad/port-scanner/scanner/connectscan"
	"github.com/FreibergVlad/port-scanner/scanner/synscan"
)

// Constructor for the controller
func CreateController() (*Controller, error) {
	var ctr *Controller = &Controller{
		config: DefaultConfig(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]bool),
		clientStop: make(chan interface{}),
		recvStop:   make(chan interface{}),
		sendStop:   make(chan interface{}),
		doneWsSend: make(chan interface{}),
		doneWsRecv: make(chan interface{}),
		wsSend:     make(chan []byte),
		wsRecv:     make(chan []byte),
	}
	// Validate the default values
	if err := config.ValidateConfigSet(ctr.config.Engine); err != nil {
		return nil, err
	}
	if err := config.Validate(ctr.config.Sweep); err != nil {
		return nil, err
	}
	go ctr.webReceiveLoop()
	go ctr.webSendLoop()
	return ctr, nil
}

// A default config for the controller and every scan engine
func DefaultConfig() configData {
	return configData{
		OpCode:     "config",
		Techniques: []string{"syn", "connect"},
		Formats:    report.FormatNames(),
		// The connect engine needs no privileges, so it is the default
		Technique: "connect",
		Engine:    defaultEngine(),
		Sweep:     defaultSweep(),
	}
}

func defaultEngine() engineData {
	return engineData{
		Syn:     synscan.GetDefault(),
		Connect: connectscan.GetDefault(),
	}
}

func defaultSweep() sweepData {
	return sweepData{
		Ports:   config.MakeString("1-1024", config.Display{Description: "The ports to sweep, as comma separated ports and ranges."}),
		Shuffle: config.MakeBool(false, config.Display{Description: "Probe ports in random order."}),
	}
}

// Callback when receiving a message from the client
func (ctr *Controller) handleMessage(data []byte) []byte {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return toMessage("error", "Unable to read command: "+err.Error())
	}

	// Determine the operation to perform
	switch cmd.OpCode {
	case "scan":
		// Abort a sweep if one is already running
		if err := ctr.handleAbort(); err != nil {
			return toMessage("error", "Unable to abort scan: "+err.Error())
		} else if err := ctr.handleScan(data); err != nil {
			return toMessage("error", "Unable to start scan: "+err.Error())
		} else {
			return toMessage("scan", "Scan started")
		}
	case "abort":
		if err := ctr.handleAbort(); err != nil {
			return toMessage("error", "Unable to abort scan: "+err.Error())
		} else {
			return toMessage("abort", "Abort success")
		}
	case "config":
		if data, err := ctr.handleConfig(); err != nil {
			return toMessage("error", "Could not encode config: "+err.Error())
		} else {
			return data
		}
	default:
		return toMessage("error", "Unknown operation code")
	}
}

// A helper function for preparing responses to the client
// opcode is the type of message, and is one of the valid opCodes from the client or "error"
// data is the message
func toMessage(opcode string, data string) []byte {
	var mt messageType
	mt.OpCode = opcode
	mt.Message = data
	if data, err := json.Marshal(mt); err != nil {
		return []byte("{\"OpCode\" : \"error\", \"Message\" : \"Marshal Error\" }")
	} else {
		return data
	}
}

// Handle the config command
func (ctr *Controller) handleConfig() ([]byte, error) {
	if data, err := json.Marshal(ctr.config); err != nil {
		return nil, err
	} else {
		return data, nil
	}
}

// Handle the scan command
// Input is the byte string of a JSON object carrying the sweep parameters
func (ctr *Controller) handleScan(data []byte) error {
	job, err := ctr.retrieveJob(data)
	if err != nil {
		return err
	}
	ctr.job = job
	go ctr.runScan(job)
	return nil
}

// Build the scan job a client asked for
func (ctr *Controller) retrieveJob(data []byte) (*scanJob, error) {
	var readCd configData = DefaultConfig()

	// The current values fill in for any keys the client omitted
	readCd.Technique = ctr.config.Technique
	if err := config.CopyValueSet(&readCd.Engine, ctr.config.Engine, nil); err != nil {
		return nil, err
	}
	if err := config.CopyValue(&readCd.Sweep, ctr.config.Sweep); err != nil {
		return nil, err
	}
	// Read in the new config data
	if err := json.Unmarshal(data, &readCd); err != nil {
		return nil, err
	}

	field, err := techniqueField(readCd.Technique)
	if err != nil {
		return nil, err
	}
	// A fresh default keeps the correct ranges and descriptions; only the
	// received values are moved onto it
	var newEngine engineData = defaultEngine()
	if err := config.CopyValueSet(&newEngine, readCd.Engine, []string{field}); err != nil {
		return nil, err
	}
	if err := config.ValidateConfigSet(&newEngine); err != nil {
		return nil, err
	}
	var newSweep sweepData = defaultSweep()
	if err := config.CopyValue(&newSweep, readCd.Sweep); err != nil {
		return nil, err
	}

	ports, err := scanner.ParsePortRanges(newSweep.Ports.Value)
	if err != nil {
		return nil, err
	}
	if newSweep.Shuffle.Value {
		scanner.ShufflePorts(ports, nil)
	}

	var (
		engine scanner.Scanner
		target string
	)
	switch readCd.Technique {
	case "syn":
		if engine, err = synscan.ToScanner(newEngine.Syn); err != nil {
			return nil, err
		}
		target = newEngine.Syn.TargetIP.Value
	case "connect":
		if engine, err = connectscan.ToScanner(newEngine.Connect); err != nil {
			return nil, err
		}
		target = newEngine.Connect.TargetIP.Value
	}

	// Only the fields a scan consumes are updated
	ctr.config.Technique = readCd.Technique
	ctr.config.Engine = newEngine
	ctr.config.Sweep = newSweep

	return &scanJob{
		engine:    engine,
		technique: readCd.Technique,
		target:    target,
		ports:     ports,
		jobDone:   make(chan interface{}),
	}, nil
}

// Map a technique name onto its engineData field
func techniqueField(technique string) (string, error) {
	switch technique {
	case "syn":
		return "Syn", nil
	case "connect":
		return "Connect", nil
	default:
		return "", errors.New("Invalid Technique value")
	}
}

// Loop for one sweep: stream every verdict to the clients, then the summary
func (ctr *Controller) runScan(job *scanJob) {
	defer close(job.jobDone)

	var (
		results     chan scanner.Result = make(chan scanner.Result, 64)
		forwardDone chan interface{}    = make(chan interface{})
		collected   []scanner.Result
		start       time.Time = time.Now()
	)

	go func() {
		defer close(forwardDone)
		for r := range results {
			collected = append(collected, r)
			if data, err := json.Marshal(resultMessage{OpCode: "result", Result: r}); err == nil {
				ctr.send(data)
			}
		}
	}()

	err := job.engine.Scan(job.ports, results)
	close(results)
	<-forwardDone

	if err == scanner.ErrCancelled {
		return
	}
	if err != nil {
		ctr.send(toMessage("error", "Scan failed: "+err.Error()))
		return
	}

	done := doneMessage{
		OpCode:    "done",
		Target:    job.target,
		Technique: job.technique,
		Summary:   scanner.Summarize(collected, time.Since(start)),
	}
	if data, err := json.Marshal(done); err != nil {
		ctr.send(toMessage("error", "Could not encode summary: "+err.Error()))
	} else {
		ctr.send(data)
	}
}

// Handle the abort operation
func (ctr *Controller) handleAbort() error {
	var err error
	if ctr.job != nil {
		err = ctr.job.engine.Close()
		// We must wait to ensure that the job goroutine is complete
		<-ctr.job.jobDone
		ctr.job = nil
	}
	return err
}

// Shutdown the controller
func (ctr *Controller) Shutdown() error {
	// Stopping the web loops first means nothing else touches the job
	err := ctr.webShutdown()
	if aerr := ctr.handleAbort(); err == nil {
		err = aerr
	}
	return err
}

package controller

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/FreibergVlad/port-scanner/controller/config"
	"github.com/FreibergVlad/port-scanner/scanner"
	"github.com/FreibergVlad/port-scanner/scanner/connectscan"
	"github.com/FreibergVlad/port-scanner/scanner/synscan"
)

// The go json library only decodes the keys present in both the data and
// the structure, so a message can be unmarshalled twice: once into command
// to read the opcode, and a second time into whatever struct that opcode
// calls for.
type command struct {
	OpCode string
}

type messageType struct {
	OpCode  string
	Message string
}

// engineData carries one config per scan technique. Only the member named
// by the selected technique is read when a scan starts.
type engineData struct {
	Syn     synscan.ConfigClient
	Connect connectscan.ConfigClient
}

// sweepData is the engine independent half of a scan request.
type sweepData struct {
	Ports   config.StringParam
	Shuffle config.BoolParam
}

// configData is the full configuration exchanged with clients. Techniques
// and Formats enumerate what the server supports so frontends never hard
// code them.
type configData struct {
	OpCode     string
	Techniques []string
	Formats    []string
	Technique  string
	Engine     engineData
	Sweep      sweepData
}

// resultMessage carries one port verdict to the clients.
type resultMessage struct {
	OpCode string
	Result scanner.Result
}

// doneMessage closes out a sweep on the wire.
type doneMessage struct {
	OpCode    string
	Target    string
	Technique string
	Summary   scanner.Summary
}

// scanJob is one running sweep.
type scanJob struct {
	engine    scanner.Scanner
	technique string
	target    string
	ports     []uint16

	// Closed by the job goroutine once every message is out
	jobDone chan interface{}
}

type Controller struct {
	config     configData
	job        *scanJob
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	clientLock sync.Mutex
	waitGroup  sync.WaitGroup
	clientStop chan interface{}
	recvStop   chan interface{}
	sendStop   chan interface{}
	doneWsSend chan interface{}
	doneWsRecv chan interface{}
	wsSend     chan []byte
	wsRecv     chan []byte
}

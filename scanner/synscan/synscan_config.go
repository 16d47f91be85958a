package synscan

import (
	"errors"
	"time"

	"github.com/FreibergVlad/port-scanner/controller/config"
	"github.com/FreibergVlad/port-scanner/scanner"
)

type ConfigClient struct {
	TargetIP        config.IPV4Param
	SourceIP        config.IPV4Param
	SourcePort      config.U16Param
	Template        config.SelectParam
	ProbesPerSecond config.U64Param
	ReadTimeout     config.U64Param
	WriteTimeout    config.U64Param
}

func GetDefault() ConfigClient {
	return ConfigClient{
		TargetIP:        config.MakeIPV4("127.0.0.1", config.Display{Description: "The host to sweep."}),
		SourceIP:        config.MakeIPV4("127.0.0.1", config.Display{Description: "The local address probes leave from. Must match the route to the target."}),
		SourcePort:      config.MakeU16(0, [2]uint16{0, 65535}, config.Display{Description: "The local port probes are sent from. 0 picks a random ephemeral port."}),
		Template:        config.MakeSelect("default", scanner.TemplateNames(), config.Display{Description: "The probe template shaping SYN segments."}),
		ProbesPerSecond: config.MakeU64(100, [2]uint64{0, 1000000}, config.Display{Description: "The probe rate limit. 0 disables limiting."}),
		ReadTimeout:     config.MakeU64(2000, [2]uint64{0, 600000}, config.Display{Description: "How long to wait for replies after the last probe, in milliseconds."}),
		WriteTimeout:    config.MakeU64(0, [2]uint64{0, 600000}, config.Display{Description: "The raw socket write timeout in milliseconds. 0 waits indefinitely."}),
	}
}

func ToScanner(cc ConfigClient) (*Scanner, error) {
	var c Config
	var err error
	if c.TargetIP, err = cc.TargetIP.GetValue(); err != nil {
		return nil, errors.New("Invalid TargetIP value")
	}
	if c.SourceIP, err = cc.SourceIP.GetValue(); err != nil {
		return nil, errors.New("Invalid SourceIP value")
	}
	c.SourcePort = cc.SourcePort.Value

	if c.Template, err = scanner.TemplateByName(cc.Template.Value); err != nil {
		return nil, errors.New("Invalid Template value")
	}

	c.ProbesPerSecond = float64(cc.ProbesPerSecond.Value)
	c.ReadTimeout = time.Duration(cc.ReadTimeout.Value) * time.Millisecond
	c.WriteTimeout = time.Duration(cc.WriteTimeout.Value) * time.Millisecond

	return MakeScanner(c)
}

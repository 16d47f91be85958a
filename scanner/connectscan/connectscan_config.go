package connectscan

import (
	"errors"
	"time"

	"github.com/FreibergVlad/port-scanner/controller/config"
)

type ConfigClient struct {
	TargetIP        config.IPV4Param
	DialTimeout     config.U64Param
	ProbesPerSecond config.U64Param
}

func GetDefault() ConfigClient {
	return ConfigClient{
		TargetIP:        config.MakeIPV4("127.0.0.1", config.Display{Description: "The host to sweep."}),
		DialTimeout:     config.MakeU64(2000, [2]uint64{1, 600000}, config.Display{Description: "The timeout for each connection attempt, in milliseconds."}),
		ProbesPerSecond: config.MakeU64(100, [2]uint64{0, 1000000}, config.Display{Description: "The connection attempt rate limit. 0 disables limiting."}),
	}
}

func ToScanner(cc ConfigClient) (*Scanner, error) {
	var c Config
	var err error
	if c.TargetIP, err = cc.TargetIP.GetValue(); err != nil {
		return nil, errors.New("Invalid TargetIP value")
	}
	c.DialTimeout = time.Duration(cc.DialTimeout.Value) * time.Millisecond
	c.ProbesPerSecond = float64(cc.ProbesPerSecond.Value)
	return MakeScanner(c)
}

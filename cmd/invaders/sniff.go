package main

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/urfave/cli/v2"

	"github.com/dcrodman/invaders/internal/sniffer"
)

func sniffCommand() *cli.Command {
	return &cli.Command{
		Name:        "sniff",
		Usage:       "invaders sniff --file capture.pcap",
		Description: "Decodes the game commands in a packet capture taken with tcpdump or similar.",
		Action:      sniff,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a pcap file",
				Required: true,
			},
			&cli.UintFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port the game server listened on",
				Value:   4321,
			},
		},
	}
}

func sniff(cc *cli.Context) error {
	f, err := os.Open(cc.String("file"))
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("error reading capture: %w", err)
	}
	source := gopacket.NewPacketSource(r, r.LinkType())
	return sniffer.New(uint16(cc.Uint("port"))).Run(source, os.Stdout)
}

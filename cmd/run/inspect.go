package run

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"
	"github.com/spf13/cobra"

	"wgobfs/internal/flog"
	"wgobfs/internal/wg"
)

var (
	inspectIface string
	inspectPort  int
)

// inspectCmd sniffs a UDP port and reports how its datagrams classify.
// Plaintext WireGuard shows up under its message kinds; a healthy
// obfuscated link should classify almost entirely as unknown.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Capture a UDP port and classify WireGuard vs opaque datagrams",
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(inspectIface, inspectPort)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectIface, "iface", "i", "", "interface to capture on")
	inspectCmd.Flags().IntVarP(&inspectPort, "port", "p", 0, "UDP port to capture")
	inspectCmd.MarkFlagRequired("iface")
	inspectCmd.MarkFlagRequired("port")
}

func inspect(iface string, port int) error {
	handle, err := pcap.OpenLive(iface, 65535, false, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("failed to open pcap handle: %w", err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp and port %d", port)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("failed to set BPF filter: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		handle.Close()
	}()

	flog.Infof("Capturing %s on %s, interrupt to stop", filter, iface)

	tally := make(map[wg.Kind]int)
	total := 0
	src := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range src.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		payload := udpLayer.(*layers.UDP).Payload
		if len(payload) == 0 {
			continue
		}

		kind := wg.Classify(payload)
		tally[kind]++
		total++
		flog.Debugf("%4d bytes classified %s", len(payload), kind)
		if total%100 == 0 {
			flog.Infof("Seen %d datagrams: %s", total, tallyString(tally))
		}
	}

	flog.Infof("Capture finished, %d datagrams: %s", total, tallyString(tally))
	if total > 0 && tally[wg.Unknown] < total {
		flog.Warnf("%d datagrams still classify as WireGuard - traffic on this port is fingerprintable", total-tally[wg.Unknown])
	}
	return nil
}

func tallyString(tally map[wg.Kind]int) string {
	return fmt.Sprintf("init=%d resp=%d cookie=%d data=%d unknown=%d",
		tally[wg.HandshakeInit], tally[wg.HandshakeResp],
		tally[wg.Cookie], tally[wg.Data], tally[wg.Unknown])
}

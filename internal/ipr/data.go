package ipr

// EncodeDataFrame wraps a bundled user IP frame in the IPR Data envelope
// (spec §3 IPR request/response Data variant), used by internal/icmpbeacon
// to carry ICMP probes to the exit IPR once a session is established.
func EncodeDataFrame(ipFrame []byte) ([]byte, error) {
	body := requestBody{Enum: tagData, Data: dataRequest{IPFrame: ipFrame}}
	return encodeFrame(CurrentVersion, body)
}

// DecodeDataFrame extracts the bundled IP frame from an inbound IPR
// message, returning ok=false if the frame is not a Data response (e.g.
// it is a Pong from our own self-ping beacon).
func DecodeDataFrame(frame []byte) (ipFrame []byte, ok bool, err error) {
	var resp responseBody
	_, err = decodeFrame(frame, &resp)
	if err != nil {
		return nil, false, err
	}
	if resp.Enum != tagData {
		return nil, false, nil
	}
	return resp.Data.IPFrame, true, nil
}

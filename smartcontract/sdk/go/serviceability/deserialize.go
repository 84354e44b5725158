package serviceability

import "log"

func DeserializeLocation(reader *ByteReader, loc *Location) {
	loc.AccountType = AccountType(reader.ReadU8())
	loc.Owner = reader.ReadPubkey()
	loc.Index = reader.ReadU128()
	loc.Bump_seed = reader.ReadU8()
	loc.Lat = reader.ReadF64()
	loc.Lng = reader.ReadF64()
	loc.LocId = reader.ReadU32()
	loc.Status = LocationStatus(reader.ReadU8())
	loc.Code = reader.ReadString()
	loc.Name = reader.ReadString()
	loc.Country = reader.ReadString()
	loc.PubKey = reader.ReadPubkey()
}

func DeserializeInterface(reader *ByteReader, iface *Interface) {
	iface.Version = reader.ReadU8()

	if iface.Version > (CurrentInterfaceVersion - 1) { // subtract 1 because the discriminant starts from 0
		log.Println("DeserializeInterface: Unsupported interface version", iface.Version)
		return
	}

	iface.Status = InterfaceStatus(reader.ReadU8())
	iface.Name = reader.ReadString()
	iface.InterfaceType = InterfaceType(reader.ReadU8())
	iface.LoopbackType = LoopbackType(reader.ReadU8())
	iface.VlanId = reader.ReadU16()
	iface.IpNet = reader.ReadNetworkV4()
	iface.NodeSegmentIdx = reader.ReadU16()
	iface.UserTunnelEndpoint = (reader.ReadU8() != 0)
}

func DeserializeDevice(reader *ByteReader, dev *Device) {
	dev.AccountType = AccountType(reader.ReadU8())
	dev.Owner = reader.ReadPubkey()
	dev.Index = reader.ReadU128()
	dev.Bump_seed = reader.ReadU8()
	dev.LocationPubKey = reader.ReadPubkey()
	dev.ExchangePubKey = reader.ReadPubkey()
	dev.DeviceType = reader.ReadU8()
	dev.PublicIp = reader.ReadIPv4()
	dev.Status = DeviceStatus(reader.ReadU8())
	dev.Code = reader.ReadString()
	dev.DzPrefixes = reader.ReadNetworkV4Slice()
	dev.MetricsPublisherPubKey = reader.ReadPubkey()
	dev.ContributorPubKey = reader.ReadPubkey()
	dev.MgmtVrf = reader.ReadString()
	dev.Interfaces = make([]Interface, 0)
	var length = reader.ReadU32()
	if (length * 18) > reader.Remaining() {
		log.Println("DeserializeDevice: Not enough data for interfaces (# of interfaces = ", length, ")")
		return
	}
	for i := uint32(0); i < length; i++ {
		var iface Interface
		DeserializeInterface(reader, &iface)
		dev.Interfaces = append(dev.Interfaces, iface)
	}
	dev.ReferenceCount = reader.ReadU32()
	dev.UsersCount = reader.ReadU16()
	dev.MaxUsers = reader.ReadU16()
	// dev.PubKey is set separately in client.go after deserialization
}

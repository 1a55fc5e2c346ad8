package payload

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ReceiveTokensSignature is the destination-chain entry point invoked with the bridged tokens
const ReceiveTokensSignature = "ReceiveTokens(address,address)"

// ReceiveTokensSelector is the 4-byte selector of ReceiveTokensSignature
var ReceiveTokensSelector = crypto.Keccak256([]byte(ReceiveTokensSignature))[:4]

// ErrInvalidPayload is returned when a payload does not decode to the expected layout
var ErrInvalidPayload = errors.New("invalid payload")

var (
	addressType, _ = abi.NewType("address", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	// Argument order must match the on-chain decoders exactly
	destinationArgs = abi.Arguments{
		{Name: "outputToken", Type: addressType},
		{Name: "recipient", Type: addressType},
	}
	zetachainArgs = abi.Arguments{
		{Name: "targetToken", Type: addressType},
		{Name: "counterparty", Type: addressType},
		{Name: "recipient", Type: addressType},
		{Name: "destinationPayload", Type: bytesType},
	}
)

// DestinationCall is the ReceiveTokens call executed on the destination chain
type DestinationCall struct {
	OutputToken common.Address
	Recipient   common.Address
}

// ZetachainCall is the message the Universal App decodes on ZetaChain
type ZetachainCall struct {
	TargetToken  common.Address // ZRC-20 of the destination chain asset
	Counterparty common.Address // Receiving contract on the destination chain
	Recipient    common.Address
	Payload      []byte // Encoded DestinationCall
}

// Encode returns selector || abi.encode(outputToken, recipient)
func (c DestinationCall) Encode() ([]byte, error) {
	args, err := destinationArgs.Pack(c.OutputToken, c.Recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to pack destination payload: %w", err)
	}

	out := make([]byte, 0, len(ReceiveTokensSelector)+len(args))
	out = append(out, ReceiveTokensSelector...)
	return append(out, args...), nil
}

// Encode returns abi.encode(targetToken, counterparty, recipient, payload)
func (c ZetachainCall) Encode() ([]byte, error) {
	payload := c.Payload
	if payload == nil {
		payload = []byte{}
	}

	out, err := zetachainArgs.Pack(c.TargetToken, c.Counterparty, c.Recipient, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to pack zetachain payload: %w", err)
	}
	return out, nil
}

// EncodeDestinationPayload encodes the ReceiveTokens call for recipient and outputToken
func EncodeDestinationPayload(recipient, outputToken common.Address) ([]byte, error) {
	return DestinationCall{OutputToken: outputToken, Recipient: recipient}.Encode()
}

// EncodeZetachainPayload encodes the Universal App message
func EncodeZetachainPayload(viaToken, counterparty, recipient common.Address, destinationPayload []byte) ([]byte, error) {
	return ZetachainCall{
		TargetToken:  viaToken,
		Counterparty: counterparty,
		Recipient:    recipient,
		Payload:      destinationPayload,
	}.Encode()
}

// DecodeDestinationPayload verifies the selector and unpacks a destination payload
func DecodeDestinationPayload(data []byte) (DestinationCall, error) {
	if len(data) < len(ReceiveTokensSelector) || !bytes.Equal(data[:4], ReceiveTokensSelector) {
		return DestinationCall{}, fmt.Errorf("%w: missing ReceiveTokens selector", ErrInvalidPayload)
	}

	values, err := destinationArgs.Unpack(data[4:])
	if err != nil {
		return DestinationCall{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return DestinationCall{
		OutputToken: values[0].(common.Address),
		Recipient:   values[1].(common.Address),
	}, nil
}

// DecodeZetachainPayload unpacks a Universal App message
func DecodeZetachainPayload(data []byte) (ZetachainCall, error) {
	values, err := zetachainArgs.Unpack(data)
	if err != nil {
		return ZetachainCall{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return ZetachainCall{
		TargetToken:  values[0].(common.Address),
		Counterparty: values[1].(common.Address),
		Recipient:    values[2].(common.Address),
		Payload:      values[3].([]byte),
	}, nil
}

package filestore

import (
	"errors"
	"strconv"
)

// Code is the error kind of a failed operation. Success is 0; every failure
// kind is negative. Codes implement error so they can be used with errors.Is.
type Code int8

const (
	OK                       Code = 0
	AlreadyExists            Code = -1
	CreateError              Code = -2
	FilesystemUnavailable    Code = -3
	ParentAlreadyExists      Code = -4
	ParentCreateFailed       Code = -5
	CreateFailed             Code = -6
	WouldOverwrite           Code = -7
	NotFound                 Code = -8
	ChipNotReady             Code = -9
	ReadError                Code = -10
	WriteError               Code = -11
	DeleteFailed             Code = -12
	DeleteVerificationFailed Code = -13
	PartitionFailed          Code = -14
	MakeFilesystemFailed     Code = -15
	MountVerificationFailed  Code = -16
	PathTooLong              Code = -17
	InvalidArgument          Code = -18

	// Unknown is reported by CodeOf for errors that did not come from this package.
	Unknown Code = -128
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case AlreadyExists:
		return "already exists"
	case CreateError:
		return "create error"
	case FilesystemUnavailable:
		return "filesystem unavailable"
	case ParentAlreadyExists:
		return "parent directory already exists"
	case ParentCreateFailed:
		return "parent directory create failed"
	case CreateFailed:
		return "create failed"
	case WouldOverwrite:
		return "would overwrite existing content"
	case NotFound:
		return "not found"
	case ChipNotReady:
		return "flash chip not ready"
	case ReadError:
		return "read error"
	case WriteError:
		return "write error"
	case DeleteFailed:
		return "delete failed"
	case DeleteVerificationFailed:
		return "delete verification failed"
	case PartitionFailed:
		return "partition failed"
	case MakeFilesystemFailed:
		return "make filesystem failed"
	case MountVerificationFailed:
		return "mount verification failed"
	case PathTooLong:
		return "path too long"
	case InvalidArgument:
		return "invalid argument"
	default:
		return "code(" + strconv.Itoa(int(c)) + ")"
	}
}

func (c Code) Error() string { return c.String() }

// Int returns the numeric code.
func (c Code) Int() int { return int(c) }

// Error is returned by every failing Store operation.
type Error struct {
	Op   string
	Path string
	Code Code
	// Err is the cause: a blockstore error, or the error of the step a
	// cascading operation delegated to.
	Err error
}

func (e *Error) Error() string {
	msg := "filestore " + e.Op
	if e.Path != "" {
		msg += " " + strconv.Quote(e.Path)
	}
	msg += ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Code target against this level of the chain. errors.Is keeps
// walking into the cause, so a cascade also matches the codes of its inner
// steps; use CodeOf for the outermost kind.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// CodeOf returns the outermost code carried by err, OK for nil and Unknown
// for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}

// Cascade tables. Every code the inner operation can return has an entry.
var (
	// CreateFile creating a missing parent via CreateDirectory.
	parentDirCascade = map[Code]Code{
		AlreadyExists:         ParentAlreadyExists,
		CreateError:           ParentCreateFailed,
		FilesystemUnavailable: ParentCreateFailed,
		ChipNotReady:          ParentCreateFailed,
		PathTooLong:           ParentCreateFailed,
	}

	// SaveFile and AppendToFile creating a missing file via CreateFile.
	createFileCascade = map[Code]Code{
		FilesystemUnavailable: CreateFailed,
		ChipNotReady:          CreateFailed,
		PathTooLong:           CreateFailed,
		AlreadyExists:         CreateFailed,
		ParentAlreadyExists:   CreateFailed,
		ParentCreateFailed:    CreateFailed,
		CreateError:           CreateFailed,
	}
)

// Codes each cascaded operation can produce.
var (
	createDirectoryCodes = []Code{FilesystemUnavailable, ChipNotReady, PathTooLong, AlreadyExists, CreateError}
	createFileCodes      = []Code{FilesystemUnavailable, ChipNotReady, PathTooLong, AlreadyExists, ParentAlreadyExists, ParentCreateFailed, CreateError}
)

func remap(table map[Code]Code, fallback Code, inner error) Code {
	if c, ok := table[CodeOf(inner)]; ok {
		return c
	}
	return fallback
}

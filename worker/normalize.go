package worker

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Conveyor/model"
)

// NormalizeResult приводит произвольное возвращаемое значение worker'а
// к форме TaskResult, дополняя переданную заготовку result.
//
// Правила:
//
//   - *model.TaskResult — значение уже готово, возвращается как есть
//     (повторная нормализация — no-op)
//   - model.InProgress — сигнал "ещё не готово" сохраняется:
//     статус IN_PROGRESS + CallbackAfterSeconds
//   - map[string]any — используется как output mapping напрямую
//   - структура — сплющивается в output mapping через JSON
//   - прочее сериализуемое значение — заворачивается под ключ "result"
//   - несериализуемое значение (цикл, канал) — деградация: строковое
//     представление под "result" плюс диагностика, без ошибки
//
// Во всех ветках кроме первых двух статус становится COMPLETED.
// Функция никогда не возвращает ошибку наружу — сбой сериализации
// не должен ронять отправку результата.
func NormalizeResult(raw any, result *model.TaskResult) *model.TaskResult {
	switch v := raw.(type) {
	case *model.TaskResult:
		if v != nil {
			return v
		}
		result.MarkCompleted(nil)
		return result

	case model.TaskResult:
		return &v

	case model.InProgress:
		result.MarkInProgress(v.CallbackAfterSeconds)
		if v.OutputData != nil {
			result.OutputData = v.OutputData
		}
		return result

	case *model.InProgress:
		if v != nil {
			result.MarkInProgress(v.CallbackAfterSeconds)
			if v.OutputData != nil {
				result.OutputData = v.OutputData
			}
			return result
		}
		result.MarkCompleted(nil)
		return result

	case nil:
		result.MarkCompleted(nil)
		return result

	case map[string]any:
		result.MarkCompleted(v)
		return result

	default:
		result.MarkCompleted(flatten(raw))
		return result
	}
}

// flatten превращает значение в output mapping.
func flatten(raw any) map[string]any {
	data, err := json.Marshal(raw)
	if err != nil {
		// Деградация: несериализуемое значение не должно ронять
		// отправку результата
		return map[string]any{
			"result":              fmt.Sprintf("%v", raw),
			"serialization_error": err.Error(),
		}
	}

	// Структуры и map-подобные значения сплющиваются в mapping
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err == nil {
		return asMap
	}

	// Скаляры, массивы и прочее — под один ключ
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return map[string]any{
			"result":              fmt.Sprintf("%v", raw),
			"serialization_error": err.Error(),
		}
	}
	return map[string]any{"result": generic}
}

// Package worker реализует runtime выполнения task'ов.
//
// # Обзор
//
// Runtime повторяет цикл poll → execute → report для каждого
// зарегистрированного worker'а:
//
//   - TaskRunner опрашивает сервер batch'ами (по одному типу task за цикл)
//   - ParameterBinder (BindParams) связывает входные данные с
//     объявленными параметрами worker-функции
//   - Executor выполняет worker в ограниченном пуле горутин и ведёт
//     таблицу отложенных выполнений (poll-цикл никогда не блокируется
//     на теле worker'а)
//   - NormalizeResult приводит произвольное возвращаемое значение
//     к форме TaskResult
//   - Результат отправляется через client.UpdateTask
//
// # Регистрация
//
// Worker'ы регистрируются явно, без сканирования и reflection:
//
//	registry := worker.NewRegistry()
//	registry.Register(worker.Definition{
//	    TaskTypes: []string{"send_notification"},
//	    Worker: worker.ArgsWorker([]worker.Param{
//	        {Name: "recipient"},
//	        {Name: "attempts", Default: 3},
//	    }, sendNotification),
//	    ThreadCount: 4,
//	})
//
//	rt, err := worker.NewRuntime(worker.RuntimeConfig{
//	    Client:   apiClient,
//	    Registry: registry,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	rt.Start(ctx)
//	defer rt.Stop()
//
// # Ошибки worker'ов
//
// Runtime сам никогда не повторяет тело worker'а — retry policy
// принадлежит серверу. Различаются два вида ошибок:
//
//   - model.NonRetryable(err) → FAILED_WITH_TERMINAL_ERROR, без retry
//   - любая другая ошибка (или panic) → FAILED + stack trace в логах task
package worker
